package crawler

import "testing"

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"prefix match", "/admin/*", "/admin/dashboard", true},
		{"prefix exact", "/admin/*", "/admin", true},
		{"prefix nested", "/admin/*", "/admin/users/edit", true},
		{"prefix no match", "/admin/*", "/administrator", false},
		{"extension", "*.php", "/shop/cart.php", true},
		{"extension no match", "*.php", "/shop/cart.html", false},
		{"exact", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},
		{"single char", "/news/20??", "/news/2024", true},
		{"single char too long", "/news/20??", "/news/20245", false},
		{"segment glob", "kontakt*", "/om-oss/kontakt-oss", true},
		{"root", "/", "/", true},
		{"bad pattern", "[", "/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	ignore := []string{"/api/internal/*", "*.php"}
	follow := []string{"/api/*", "/"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://site.com/api/v1", true},
		{"https://site.com/api/internal/x", false},
		{"https://site.com/api/cart.php", false},
		{"https://site.com", true},
		{"https://site.com/blog", false},
	}

	for _, tt := range tests {
		if got := shouldCrawl(tt.url, ignore, follow); got != tt.want {
			t.Errorf("shouldCrawl(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	if !shouldCrawl("https://site.com/anything", nil, nil) {
		t.Error("no patterns must allow every link")
	}
	if shouldCrawl("://bad", []string{"/x"}, nil) {
		t.Error("unparsable links must be rejected")
	}
}
