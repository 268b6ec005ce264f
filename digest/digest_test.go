package digest

import (
	"bytes"
	"strings"
	"testing"
)

func TestFromBytesAndParseRoundTrip(t *testing.T) {
	d, err := FromBytes(SHA256, []byte("hello world"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	s := d.String()
	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	if !parsed.Equal(d) {
		t.Fatalf("round trip mismatch: %v != %v", parsed, d)
	}
}

func TestFromReaderMatchesFromBytes(t *testing.T) {
	data := []byte("the quick brown fox")
	want, _ := FromBytes(SHA1, data)
	got, err := FromReader(SHA1, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("FromReader = %v, want %v", got, want)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{"", "sha256:abc", "md5:abc:3", "sha256:abc:notanumber"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", c)
		}
	}
}

func TestMultiWriterProducesBothDigests(t *testing.T) {
	mw := NewMultiWriter()
	data := "content for both hashes"
	if _, err := mw.Write([]byte(data)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sha1Want, _ := FromBytes(SHA1, []byte(data))
	sha256Want, _ := FromBytes(SHA256, []byte(data))
	if !mw.SHA1().Equal(sha1Want) {
		t.Errorf("SHA1 = %v, want %v", mw.SHA1(), sha1Want)
	}
	if !mw.SHA256().Equal(sha256Want) {
		t.Errorf("SHA256 = %v, want %v", mw.SHA256(), sha256Want)
	}
}

func TestDigestStringFormat(t *testing.T) {
	d := Digest{Algo: SHA256, Hex: "deadbeef", Size: 42}
	if !strings.HasPrefix(d.String(), "sha256:deadbeef:") {
		t.Errorf("unexpected format: %s", d.String())
	}
}
