package cookies

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOpts() Options {
	return Options{
		DefaultDomain: ".example.com",
		DefaultTTL:    24 * time.Hour,
		Now:           func() time.Time { return fixedNow },
	}
}

func TestParseString(t *testing.T) {
	got, err := ParseString("a1=abc; web_session=x=y=z ;  webId = 42;novalue; =orphan;", testOpts())
	require.NoError(t, err)

	want := []SessionCookie{
		{Name: "a1", Value: "abc", Domain: ".example.com", Path: "/", HTTPOnly: true, Secure: true, SameSite: SameSiteLax, ExpiresAt: fixedNow.Add(24 * time.Hour)},
		{Name: "web_session", Value: "x=y=z", Domain: ".example.com", Path: "/", HTTPOnly: true, Secure: true, SameSite: SameSiteLax, ExpiresAt: fixedNow.Add(24 * time.Hour)},
		{Name: "webId", Value: "42", Domain: ".example.com", Path: "/", HTTPOnly: false, Secure: true, SameSite: SameSiteLax, ExpiresAt: fixedNow.Add(24 * time.Hour)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseString mismatch (-want +got):\n%s", diff)
	}
}

func TestParseString_OnePerPair(t *testing.T) {
	tests := []struct {
		name  string
		input string
		names []string
	}{
		{"single", "k=v", []string{"k"}},
		{"two", "k=v;k2=v2", []string{"k", "k2"}},
		{"spaces", " k = v ; k2 = v2 ", []string{"k", "k2"}},
		{"trailing separator", "k=v;", []string{"k"}},
		{"empty value", "k=", []string{"k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseString(tt.input, testOpts())
			require.NoError(t, err)
			require.Len(t, got, len(tt.names))
			for i, c := range got {
				assert.Equal(t, tt.names[i], c.Name)
				assert.Equal(t, ".example.com", c.Domain)
				assert.Equal(t, "/", c.Path)
				assert.Equal(t, fixedNow.Add(24*time.Hour), c.ExpiresAt)
			}
		})
	}
}

func TestPrepare_EmptyInput(t *testing.T) {
	_, err := Prepare(Input{}, testOpts())
	require.Error(t, err)
	assert.True(t, IsEmptyInput(err))

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ReasonEmptyInput, pe.Reason)
}

func TestPrepare_RawWinsOverFile(t *testing.T) {
	got, err := Prepare(Input{Raw: "k=v", File: "/does/not/exist.json"}, testOpts())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "k", got[0].Name)
}

func TestParseString_NoPairs(t *testing.T) {
	_, err := ParseString("garbage; more garbage", testOpts())
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ReasonNoCookies, pe.Reason)
}

func TestParseJSON_ShapesAreEquivalent(t *testing.T) {
	shapes := map[string]string{
		"bare array": `[
			{"name": "a1", "value": "abc", "domain": ".xhs.com", "httpOnly": true},
			{"name": "webId", "value": "42"}
		]`,
		"wrapped": `{"cookies": [
			{"name": "a1", "value": "abc", "domain": ".xhs.com", "httpOnly": true},
			{"name": "webId", "value": "42"}
		]}`,
		"first list field": `{
			"meta": {"exported": "today"},
			"tags": ["x", "y"],
			"data": [
				{"name": "a1", "value": "abc", "domain": ".xhs.com", "httpOnly": true},
				{"name": "webId", "value": "42"}
			],
			"other": [{"name": "ignored", "value": "1"}]
		}`,
		"json5 syntax": `[
			// exported by an extension
			{name: 'a1', value: 'abc', domain: '.xhs.com', httpOnly: true,},
			{name: 'webId', value: '42',},
		]`,
	}

	want := []SessionCookie{
		{Name: "a1", Value: "abc", Domain: ".xhs.com", Path: "/", HTTPOnly: true, SameSite: SameSiteLax, ExpiresAt: fixedNow.Add(24 * time.Hour)},
		{Name: "webId", Value: "42", Domain: ".example.com", Path: "/", SameSite: SameSiteLax, ExpiresAt: fixedNow.Add(24 * time.Hour)},
	}

	for name, data := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := ParseJSON([]byte(data), testOpts())
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseJSON_SingleObject(t *testing.T) {
	got, err := ParseJSON([]byte(`{"name": "a1", "value": "abc"}`), testOpts())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Name)
	assert.Equal(t, ".example.com", got[0].Domain)
}

func TestParseJSON_Expiry(t *testing.T) {
	data := `[
		{"name": "a", "value": "1", "expires": 1767225600},
		{"name": "b", "value": "2", "expirationDate": 1767225600.5},
		{"name": "c", "value": "3", "maxAge": 60},
		{"name": "d", "value": "4", "expires": -1}
	]`
	got, err := ParseJSON([]byte(data), testOpts())
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, time.Unix(1767225600, 0).UTC(), got[0].ExpiresAt)
	assert.Equal(t, time.Unix(1767225600, 500_000_000).UTC(), got[1].ExpiresAt)
	assert.Equal(t, fixedNow.Add(time.Minute), got[2].ExpiresAt)
	assert.Equal(t, fixedNow.Add(24*time.Hour), got[3].ExpiresAt)
}

func TestParseJSON_SameSite(t *testing.T) {
	data := `[
		{"name": "a", "value": "1", "sameSite": "strict"},
		{"name": "b", "value": "2", "sameSite": "no_restriction"},
		{"name": "c", "value": "3", "sameSite": "unspecified"}
	]`
	got, err := ParseJSON([]byte(data), testOpts())
	require.NoError(t, err)
	assert.Equal(t, SameSiteStrict, got[0].SameSite)
	assert.Equal(t, SameSiteNone, got[1].SameSite)
	assert.Equal(t, SameSiteLax, got[2].SameSite)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		reason string
	}{
		{"empty", "   ", ReasonEmptyInput},
		{"not json", "{{{", ReasonUnsupported},
		{"scalar", `"cookie"`, ReasonUnsupported},
		{"object without cookies", `{"meta": 1, "tags": ["a"]}`, ReasonUnsupported},
		{"empty array", `[]`, ReasonNoCookies},
		{"record without name and value", `[{"name": "a", "value": "1"}, {"domain": ".x.com"}]`, ReasonMalformed},
		{"non-object record", `[{"name": "a", "value": "1"}, 7]`, ReasonMalformed},
		{"only partial records", `[{"name": "a"}, {"value": "1"}]`, ReasonNoCookies},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data), testOpts())
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.reason, pe.Reason)
		})
	}
}

func TestParseJSON_MalformedIndex(t *testing.T) {
	_, err := ParseJSON([]byte(`[{"name": "a", "value": "1"}, {"path": "/"}]`), testOpts())
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Contains(t, pe.Error(), "malformed record at index 1")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cookies": [{"name": "a1", "value": "abc"}]}`), 0o600))

	got, err := Prepare(Input{File: path}, testOpts())
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = LoadFile(filepath.Join(dir, "missing.json"), testOpts())
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ReasonUnreadable, pe.Reason)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	assert.Equal(t, "abcdefghijklmnopqrst...", Preview("abcdefghijklmnopqrstuvwxyz"))
}
