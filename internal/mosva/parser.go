// Package mosva parses the association member directory into companies.
package mosva

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Directory file names and the membership tier each one lists.
const (
	OrdinaryMembersFile  = "mosva_ordinarymembers.json"
	AssociateMembersFile = "mosva_associate-member.json"
)

var (
	nameSplit     = regexp.MustCompile(`\*\*([^*]+?)\*\*`)
	telLabel      = regexp.MustCompile(`^Tel:?\s*`)
	faxLabel      = regexp.MustCompile(`^Fax:?\s*`)
	markdownLink  = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	plainURL      = regexp.MustCompile(`(www\.[^\s]+|https?://[^\s]+)`)
	emailPattern  = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	addressIgnore = []string{"tel", "fax", "www", "http"}
)

// Document is one scraped directory page.
type Document struct {
	Markdown string   `json:"markdown"`
	Metadata Metadata `json:"metadata"`
}

// Metadata describes where a Document was scraped from.
type Metadata struct {
	Title     string `json:"title"`
	SourceURL string `json:"sourceURL"`
}

// Parse extracts companies from the markdown of doc.
func Parse(doc Document, membership vessel.Membership) []vessel.Company {
	md := doc.Markdown
	bounds := nameSplit.FindAllStringSubmatchIndex(md, -1)
	companies := make([]vessel.Company, 0, len(bounds))
	for i, b := range bounds {
		name := strings.TrimSpace(md[b[2]:b[3]])
		end := len(md)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		details := strings.TrimSpace(md[b[1]:end])
		if name == "" || details == "" {
			continue
		}
		c := parseBlock(name, details)
		c.MembershipType = membership
		c.SourceURL = doc.Metadata.SourceURL
		companies = append(companies, c)
	}
	return companies
}

func parseBlock(name, details string) vessel.Company {
	c := vessel.Company{Name: name}
	var address []string
	for _, line := range strings.Split(details, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "Tel"):
			c.Phone = strings.TrimSpace(telLabel.ReplaceAllString(line, ""))
		case strings.HasPrefix(line, "Fax"):
			c.Fax = strings.TrimSpace(faxLabel.ReplaceAllString(line, ""))
		case strings.HasPrefix(line, "[www.") || strings.HasPrefix(line, "www.") || strings.Contains(line, "http"):
			if site := websiteFrom(line); site != "" {
				c.Website = site
			}
		case strings.Contains(line, "@"):
			if m := emailPattern.FindString(line); m != "" {
				c.Email = m
			}
		case !containsAny(strings.ToLower(line), addressIgnore):
			address = append(address, line)
		}
	}
	c.Address = strings.Join(address, ", ")
	return c
}

func websiteFrom(line string) string {
	if m := markdownLink.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	m := plainURL.FindString(line)
	if m == "" {
		return ""
	}
	if !strings.HasPrefix(m, "http") {
		m = "http://" + m
	}
	return m
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// LoadFile reads one directory JSON file.
func LoadFile(path string, membership vessel.Membership) ([]vessel.Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read member file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode member file %s: %w", filepath.Base(path), err)
	}
	return Parse(doc, membership), nil
}

// LoadDir reads both directory files from dir. A missing file is logged and
// skipped; it is an error only when neither file yields a company.
func LoadDir(dir string, logger *zap.Logger) ([]vessel.Company, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := []struct {
		file       string
		membership vessel.Membership
	}{
		{OrdinaryMembersFile, vessel.MembershipOrdinary},
		{AssociateMembersFile, vessel.MembershipAssociate},
	}
	var (
		all  []vessel.Company
		errs []error
	)
	seen := make(map[string]struct{})
	for _, src := range sources {
		path := filepath.Join(dir, src.file)
		companies, err := LoadFile(path, src.membership)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("member file missing", zap.String("path", path))
				continue
			}
			errs = append(errs, err)
			continue
		}
		for _, c := range companies {
			if _, dup := seen[c.Name]; dup {
				continue
			}
			seen[c.Name] = struct{}{}
			all = append(all, c)
		}
		logger.Info("parsed member file",
			zap.String("file", src.file),
			zap.Int("companies", len(companies)),
		)
	}
	if len(all) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("no member companies found in %s", dir)
	}
	return all, nil
}

// Directory serves the member companies found under Dir.
type Directory struct {
	Dir    string
	Logger *zap.Logger
}

// Companies loads the directory on every call so edits to the data files
// are picked up by the next session.
func (d Directory) Companies(ctx context.Context) ([]vessel.Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadDir(d.Dir, d.Logger)
}
