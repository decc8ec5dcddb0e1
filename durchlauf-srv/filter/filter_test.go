package filter

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocklistExactMatch(t *testing.T) {
	b := NewBlocklist(true, false)
	b.Add("example.com")
	b.Add("192.168.1.50")

	assert.True(t, b.IsBlocked("example.com"))
	assert.True(t, b.IsBlocked("192.168.1.50"))
	assert.False(t, b.IsBlocked("example.org"))
	assert.False(t, b.IsBlocked("192.168.1.51"))
}

func TestBlocklistSubdomainMatch(t *testing.T) {
	b := NewBlocklist(true, false)
	b.Add("example.com")

	assert.True(t, b.IsBlocked("www.example.com"))
	assert.True(t, b.IsBlocked("a.b.example.com"))
	assert.False(t, b.IsBlocked("notexample.com"))
	assert.False(t, b.IsBlocked("example.com.evil.net"))
}

func TestBlocklistCaseInsensitiveByDefault(t *testing.T) {
	b := NewBlocklist(true, false)
	b.Add("Example.COM")

	assert.True(t, b.IsBlocked("example.com"))
	assert.True(t, b.IsBlocked("WWW.EXAMPLE.COM"))
}

func TestBlocklistCaseSensitive(t *testing.T) {
	b := NewBlocklist(true, true)
	b.Add("example.com")

	assert.True(t, b.IsBlocked("example.com"))
	assert.False(t, b.IsBlocked("Example.com"))
}

func TestBlocklistDisabled(t *testing.T) {
	b := NewBlocklist(false, false)
	b.Add("example.com")

	assert.False(t, b.IsBlocked("example.com"))
	assert.Equal(t, 1, b.Len())
}

func TestBlocklistEmpty(t *testing.T) {
	b := NewBlocklist(true, false)

	assert.False(t, b.IsBlocked("example.com"))
	assert.False(t, b.IsBlocked(""))
}

func TestBlocklistAddRemove(t *testing.T) {
	b := NewBlocklist(true, false)

	b.Add("example.com")
	require.True(t, b.IsBlocked("sub.example.com"))

	b.Remove("example.com")
	assert.False(t, b.IsBlocked("sub.example.com"))
	assert.Equal(t, 0, b.Len())
}

func TestBlocklistLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocked.txt")
	content := "# comment line\n" +
		"example.com\n" +
		"\n" +
		"  ads.tracker.net  \n" +
		"10.0.0.1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b := NewBlocklist(true, false)
	n, err := b.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, b.Len())

	assert.True(t, b.IsBlocked("example.com"))
	assert.True(t, b.IsBlocked("ads.tracker.net"))
	assert.True(t, b.IsBlocked("sub.ads.tracker.net"))
	assert.True(t, b.IsBlocked("10.0.0.1"))
	assert.False(t, b.IsBlocked("comment"))
}

func TestBlocklistLoadMissingFile(t *testing.T) {
	b := NewBlocklist(true, false)
	n, err := b.LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, b.Len())
}

func TestBlocklistEntries(t *testing.T) {
	b := NewBlocklist(true, false)
	b.Add("a.com")
	b.Add("b.com")

	entries := b.Entries()
	assert.ElementsMatch(t, []string{"a.com", "b.com"}, entries)
}

func TestBlocklistConcurrentAccess(t *testing.T) {
	b := NewBlocklist(true, false)
	b.Add("example.com")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.IsBlocked("www.example.com")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Add("other.net")
				b.Remove("other.net")
			}
		}()
	}
	wg.Wait()

	assert.True(t, b.IsBlocked("example.com"))
}
