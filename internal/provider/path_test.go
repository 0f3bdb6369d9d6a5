package provider

import "testing"

func TestParsePath(t *testing.T) {
	tests := []struct {
		input    string
		bucket   string
		key      string
		pathType PathType
	}{
		{"", "", "", PathTypeDrive},
		{"/", "", "", PathTypeDrive},
		{"\\", "", "", PathTypeDrive},
		{"my-bucket", "my-bucket", "", PathTypeBucket},
		{"/my-bucket", "my-bucket", "", PathTypeBucket},
		{"my-bucket/a.txt", "my-bucket", "a.txt", PathTypeObject},
		{"my-bucket/a/b/c.txt", "my-bucket", "a/b/c.txt", PathTypeObject},
		{"my-bucket\\a\\b.txt", "my-bucket", "a/b.txt", PathTypeObject},
		{"\\my-bucket\\folder\\", "my-bucket", "folder/", PathTypeObject},
	}

	for _, tt := range tests {
		p := ParsePath(tt.input)
		if p.Bucket != tt.bucket {
			t.Errorf("ParsePath(%q): expected bucket %q, got %q", tt.input, tt.bucket, p.Bucket)
		}
		if p.Key != tt.key {
			t.Errorf("ParsePath(%q): expected key %q, got %q", tt.input, tt.key, p.Key)
		}
		if p.Type() != tt.pathType {
			t.Errorf("ParsePath(%q): expected type %s, got %s", tt.input, tt.pathType, p.Type())
		}
	}
}

func TestPath_RoundTrip(t *testing.T) {
	// Parsing a path's own String form must resolve to the same target.
	inputs := []string{
		"bucket",
		"bucket/key.txt",
		"bucket/a/b/c.txt",
		"bucket/folder/",
		"\\bucket\\a\\b.txt",
	}
	for _, input := range inputs {
		first := ParsePath(input)
		second := ParsePath(first.String())
		if first != second {
			t.Errorf("Round trip of %q: %+v != %+v", input, first, second)
		}
	}
}

func TestPath_RelativeToChild(t *testing.T) {
	p := Path{Bucket: "b", Key: "logs/2024/"}

	rel, err := p.RelativeToChild("logs/2024/jan/app.log")
	if err != nil {
		t.Fatalf("RelativeToChild returned error: %v", err)
	}
	if rel != "jan/app.log" {
		t.Errorf("Expected relative key %q, got %q", "jan/app.log", rel)
	}

	if _, err := p.RelativeToChild("other/app.log"); err == nil {
		t.Error("Expected error for a key outside the prefix")
	}
}

func TestEnsureTrailingSeparator(t *testing.T) {
	if got := ensureTrailingSeparator("a/b"); got != "a/b/" {
		t.Errorf("Expected %q, got %q", "a/b/", got)
	}
	if got := ensureTrailingSeparator("a/b/"); got != "a/b/" {
		t.Errorf("Expected %q, got %q", "a/b/", got)
	}
	if got := ensureTrailingSeparator(""); got != "" {
		t.Errorf("Expected empty key to stay empty, got %q", got)
	}
}
