// Package knowledge loads the static site-data document and selects the
// facts most relevant to a chat query. The selection is a deterministic
// substring ranker, not a semantic search.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dfranca/folio-chat/internal/logger"
)

// SiteData is the typed schema of the site-data resource. Every field is
// optional; absent fields simply contribute no facts.
type SiteData struct {
	Name       string      `json:"name"`
	Location   string      `json:"location"`
	Email      string      `json:"email"`
	Status     string      `json:"status"`
	Focus      string      `json:"focus"`
	Skills     []string    `json:"skills"`
	Education  []Education `json:"education"`
	Poster     *Poster     `json:"poster"`
	Research   *Research   `json:"research"`
	GithubUser string      `json:"githubUser"`
	Socials    *Socials    `json:"socials"`
}

// Education is one schooling entry.
type Education struct {
	Years  string `json:"years"`
	School string `json:"school"`
	Degree string `json:"degree"`
	Focus  string `json:"focus"`
}

// Poster is a presented-poster entry.
type Poster struct {
	Title string `json:"title"`
	Award string `json:"award"`
}

// Research is a research-work entry.
type Research struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Socials holds profile links.
type Socials struct {
	Github    string `json:"github"`
	Linkedin  string `json:"linkedin"`
	Instagram string `json:"instagram"`
}

// Load reads the site-data resource. A missing or unreadable file is not
// fatal to the widget; callers treat it as an empty fact set.
func Load(path string) (*SiteData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site data: %w", err)
	}
	var data SiteData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse site data: %w", err)
	}
	logger.L.Debug("site data loaded", "path", path, "facts", len(data.Facts()))
	return &data, nil
}

// Facts flattens the document into short fact statements, in schema order.
func (d *SiteData) Facts() []string {
	if d == nil {
		return nil
	}
	var facts []string
	add := func(label, value string) {
		if value != "" {
			facts = append(facts, label+": "+value)
		}
	}
	add("Name", d.Name)
	add("Location", d.Location)
	add("Email", d.Email)
	add("Status", d.Status)
	add("Focus", d.Focus)
	if len(d.Skills) > 0 {
		facts = append(facts, "Skills: "+strings.Join(d.Skills, ", "))
	}
	for _, e := range d.Education {
		entry := fmt.Sprintf("Education: %s — %s", e.Years, e.School)
		if e.Degree != "" {
			entry += ", " + e.Degree
		}
		if e.Focus != "" {
			entry += " (" + e.Focus + ")"
		}
		facts = append(facts, entry)
	}
	if d.Poster != nil && d.Poster.Title != "" {
		entry := "Poster: " + d.Poster.Title
		if d.Poster.Award != "" {
			entry += " — " + d.Poster.Award
		}
		facts = append(facts, entry)
	}
	if d.Research != nil && d.Research.Title != "" {
		entry := "Research: " + d.Research.Title
		if d.Research.Summary != "" {
			entry += " — " + d.Research.Summary
		}
		facts = append(facts, entry)
	}
	add("GitHub user", d.GithubUser)
	if d.Socials != nil {
		add("GitHub", d.Socials.Github)
		add("LinkedIn", d.Socials.Linkedin)
		add("Instagram", d.Socials.Instagram)
	}
	return facts
}
