package signjar

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	t.Run("Full", func(t *testing.T) {
		const manifest = `Manifest-Version: 1.0
Built-By: nobody
Long-Header-Line: 0123456789abcdef0123456789abcdef0123456789abcdef
 0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef
 0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef

Name: foo
Ham: spam
Eggs: bacon

`
		main := http.Header{
			"Manifest-Version": []string{"1.0"},
			"Built-By":         []string{"nobody"},
			"Long-Header-Line": []string{
				"0123456789abcdef0123456789abcdef" +
					"0123456789abcdef0123456789abcdef0123456789abcdef" +
					"0123456789abcdef0123456789abcdef0123456789abcdef" +
					"0123456789abcdef0123456789abcdef0123456789abcdef"},
		}
		file := http.Header{
			"Name": []string{"foo"},
			"Ham":  []string{"spam"},
			"Eggs": []string{"bacon"},
		}
		expected := &FilesMap{
			Main:  main,
			Files: map[string]http.Header{"foo": file},
			Order: []string{"foo"},
		}
		parsed, err := ParseManifest([]byte(manifest))
		require.NoError(t, err)
		assert.Equal(t, expected, parsed)
		crlfManifest := []byte(strings.ReplaceAll(manifest, "\n", "\r\n"))
		parsed, err = ParseManifest(crlfManifest)
		require.NoError(t, err)
		assert.Equal(t, expected, parsed)
	})
	t.Run("TruncatedMain", func(t *testing.T) {
		const manifest = "Manifest-Version: 1.0\n"
		expected := &FilesMap{
			Main: http.Header{
				"Manifest-Version": []string{"1.0"},
			},
			Order: []string{},
			Files: map[string]http.Header{},
		}
		_, err := ParseManifest([]byte(manifest))
		require.ErrorIs(t, err, ErrManifestLineEndings)
		parsed, malformed, err := parseManifest([]byte(manifest))
		require.NoError(t, err)
		assert.True(t, malformed)
		assert.Equal(t, expected, parsed)
	})
	t.Run("TruncatedFile", func(t *testing.T) {
		const manifest = "Manifest-Version: 1.0\n\nName: foo\n"
		file := http.Header{
			"Name": []string{"foo"},
		}
		expected := &FilesMap{
			Main: http.Header{
				"Manifest-Version": []string{"1.0"},
			},
			Order: []string{"foo"},
			Files: map[string]http.Header{"foo": file},
		}
		_, err := ParseManifest([]byte(manifest))
		require.ErrorIs(t, err, ErrManifestLineEndings)
		parsed, malformed, err := parseManifest([]byte(manifest))
		require.NoError(t, err)
		assert.True(t, malformed)
		assert.Equal(t, expected, parsed)
	})
	t.Run("TrailingWhitespace", func(t *testing.T) {
		const manifest = "Manifest-Version: 1.0\n\nName: foo\n\n\n"
		file := http.Header{
			"Name": []string{"foo"},
		}
		expected := &FilesMap{
			Main: http.Header{
				"Manifest-Version": []string{"1.0"},
			},
			Order: []string{"foo"},
			Files: map[string]http.Header{"foo": file},
		}
		_, err := ParseManifest([]byte(manifest))
		require.ErrorIs(t, err, ErrManifestLineEndings)
		parsed, malformed, err := parseManifest([]byte(manifest))
		require.NoError(t, err)
		assert.True(t, malformed)
		assert.Equal(t, expected, parsed)
	})
	t.Run("InvalidNoName", func(t *testing.T) {
		const manifest = "Manifest-Version: 1.0\n\nFoo: bar\n\n"
		_, err := ParseManifest([]byte(manifest))
		require.Error(t, err)
	})
}

func TestDump(t *testing.T) {
	manifest := &FilesMap{
		Main: http.Header{
			"Manifest-Version": []string{"1.0"},
			"D":                []string{"D"},
			"C":                []string{"C"},
			"B":                []string{"B"},
			"A":                []string{"A"},
			"Long-Header":      []string{strings.Repeat("0123456789abcdef", 10)},
		},
		Files: map[string]http.Header{
			"foo": {"Name": []string{"foo"}, "Foo": []string{"bar"}},
			"bar": {"Name": []string{"bar"}, "Foo": []string{"bar"}},
		},
		Order: []string{"bar", "foo"},
	}
	result := string(manifest.Dump())
	expected := `Manifest-Version: 1.0
A: A
B: B
C: C
D: D
Long-Header: 0123456789abcdef0123456789abcdef0123456789abcdef012345678
 9abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd
 ef0123456789abcdef0123456789abcdef

Name: bar
Foo: bar

Name: foo
Foo: bar

`
	expected = strings.ReplaceAll(expected, "\n", "\r\n")
	assert.Equal(t, expected, result)
}

func TestAttrs(t *testing.T) {
	m := NewManifest("1.0 (apkseal)", "")
	assert.Equal(t, "1.0 (apkseal)", GetAttr(m.Main, "created-by"))
	assert.Empty(t, GetAttr(m.Main, "Built-By"))

	m.SetDigest("b.txt", crypto.SHA1, []byte{1, 2, 3})
	m.SetDigest("a.txt", crypto.SHA256, []byte{4, 5, 6})
	m.SetDigest("b.txt", crypto.SHA256, []byte{7, 8, 9})
	m.Sort()
	assert.Equal(t, []string{"a.txt", "b.txt"}, m.Order)
	assert.Equal(t, http.Header{
		"Name":           []string{"b.txt"},
		"SHA-256-Digest": []string{"BwgJ"},
	}, m.Files["b.txt"])
	m.Remove("a.txt")
	m.Remove("missing")
	expected := "Manifest-Version: 1.0\nCreated-By: 1.0 (apkseal)\n\nName: b.txt\nSHA-256-Digest: BwgJ\n\n"
	assert.Equal(t, strings.ReplaceAll(expected, "\n", "\r\n"), string(m.Dump()))
}

func TestDigestManifest(t *testing.T) {
	manifest := []byte("Manifest-Version: 1.0\r\n\r\nName: a.txt\r\nSHA-256-Digest: AAAA\r\n\r\n")
	sf, err := DigestManifest(manifest, crypto.SHA256, "apkseal", true)
	require.NoError(t, err)
	main := sha256.Sum256([]byte("Manifest-Version: 1.0\r\n\r\n"))
	whole := sha256.Sum256(manifest)
	section := sha256.Sum256([]byte("Name: a.txt\r\nSHA-256-Digest: AAAA\r\n\r\n"))
	b64 := base64.StdEncoding.EncodeToString
	// long digest lines wrap at 70 columns
	var expected bytes.Buffer
	writeAttribute(&expected, "Signature-Version", "1.0")
	writeAttribute(&expected, "SHA-256-Digest-Manifest-Main-Attributes", b64(main[:]))
	writeAttribute(&expected, "SHA-256-Digest-Manifest", b64(whole[:]))
	writeAttribute(&expected, "Created-By", "apkseal")
	writeAttribute(&expected, "X-Android-APK-Signed", "2")
	expected.WriteString("\r\n")
	writeAttribute(&expected, "Name", "a.txt")
	writeAttribute(&expected, "SHA-256-Digest", b64(section[:]))
	expected.WriteString("\r\n")
	assert.Contains(t, string(sf), "\r\n "+b64(main[:])[70-len("SHA-256-Digest-Manifest-Main-Attributes: "):]+"\r\n")
	assert.Equal(t, expected.String(), string(sf))

	sf, err = DigestManifest(manifest, crypto.SHA1, "", false)
	require.NoError(t, err)
	assert.Contains(t, string(sf), "SHA1-Digest-Manifest: ")
	assert.NotContains(t, string(sf), "X-Android-APK-Signed")
	assert.NotContains(t, string(sf), "Created-By")

	_, err = DigestManifest([]byte("Manifest-Version: 1.0\n"), crypto.SHA256, "", false)
	assert.ErrorIs(t, err, ErrManifestLineEndings)
}
