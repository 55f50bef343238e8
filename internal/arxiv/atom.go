package arxiv

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/matsen/paperrec/internal/paper"
)

// UntitledTitle is used for entries that carry no title.
const UntitledTitle = "Untitled"

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     *string      `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// parseFeed converts an Atom response body into papers, in feed order.
func parseFeed(body []byte) ([]paper.Paper, error) {
	var feed atomFeed
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	papers := make([]paper.Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		// arXiv reports query errors as a single entry under /api/errors.
		if strings.Contains(e.ID, "/api/errors") {
			return nil, &APIError{StatusCode: http.StatusBadRequest, Message: strings.TrimSpace(e.Summary)}
		}
		papers = append(papers, e.toPaper())
	}
	return papers, nil
}

func (e atomEntry) toPaper() paper.Paper {
	id := strings.TrimSpace(e.ID)
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}

	title := UntitledTitle
	if e.Title != nil {
		if t := strings.Join(strings.Fields(*e.Title), " "); t != "" {
			title = t
		}
	}

	p := paper.Paper{
		ID:       id,
		Title:    title,
		Abstract: strings.TrimSpace(e.Summary),
		Year:     publishedYear(e.Published),
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, paper.Author{Name: name})
		}
	}
	if id != "" {
		p.ExternalIDs = map[string]string{paper.ExternalArXiv: id}
	}
	return p
}

// publishedYear reads the year from an RFC 3339 timestamp; 0 when absent.
func publishedYear(published string) int {
	published = strings.TrimSpace(published)
	if len(published) < 4 {
		return 0
	}
	year, err := strconv.Atoi(published[:4])
	if err != nil {
		return 0
	}
	return year
}
