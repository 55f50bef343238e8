package arxiv

import (
	"errors"
	"testing"

	"github.com/matsen/paperrec/internal/paper"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title type="html">ArXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models are based on recurrent networks.
    </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <summary>No title here.</summary>
  </entry>
</feed>`

func TestParseFeed(t *testing.T) {
	papers, err := parseFeed([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("parseFeed() error = %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("got %d papers, want 2", len(papers))
	}

	p := papers[0]
	if p.ID != "1706.03762v7" {
		t.Errorf("ID = %q, want 1706.03762v7", p.ID)
	}
	if p.ExternalIDs[paper.ExternalArXiv] != p.ID {
		t.Errorf("ExternalIDs = %v, want ArXiv id", p.ExternalIDs)
	}
	if p.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Abstract != "The dominant sequence transduction models are based on recurrent networks." {
		t.Errorf("Abstract = %q", p.Abstract)
	}
	if p.Year != 2017 {
		t.Errorf("Year = %d, want 2017", p.Year)
	}
	if names := p.AuthorNames(); len(names) != 2 || names[1] != "Noam Shazeer" {
		t.Errorf("authors = %v", names)
	}

	untitled := papers[1]
	if untitled.Title != UntitledTitle {
		t.Errorf("Title = %q, want %q", untitled.Title, UntitledTitle)
	}
	if untitled.Year != 0 {
		t.Errorf("Year = %d, want 0 without a published date", untitled.Year)
	}
}

func TestParseFeed_Errors(t *testing.T) {
	t.Run("malformed xml", func(t *testing.T) {
		_, err := parseFeed([]byte("<feed><entry>"))
		if !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("error = %v, want ErrInvalidResponse", err)
		}
	})

	t.Run("error entry", func(t *testing.T) {
		body := `<feed xmlns="http://www.w3.org/2005/Atom"><entry>
			<id>http://arxiv.org/api/errors#incorrect_id_format_for_1234</id>
			<title>Error</title>
			<summary>incorrect id format for 1234</summary>
		</entry></feed>`
		_, err := parseFeed([]byte(body))
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
			t.Errorf("error = %v, want *APIError with status 400", err)
		}
	})

	t.Run("empty feed", func(t *testing.T) {
		papers, err := parseFeed([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
		if err != nil || len(papers) != 0 {
			t.Errorf("parseFeed() = %v, %v, want no papers", papers, err)
		}
	})
}

func TestPublishedYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2017-06-12T17:57:34Z", 2017},
		{" 1999-01-01", 1999},
		{"", 0},
		{"abc", 0},
		{"20x1-01-01", 0},
	}
	for _, tt := range tests {
		if got := publishedYear(tt.in); got != tt.want {
			t.Errorf("publishedYear(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
