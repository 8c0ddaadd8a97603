package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gitsource"
	"github.com/conorfennell/knoldeck/internal/knol"
	"github.com/conorfennell/knoldeck/internal/parser"
)

// Snapshotter writes the canonical item file.
type Snapshotter interface {
	SaveSnapshot(itemsPath string, cards []domain.Card) error
}

// Result reports what an import did.
type Result struct {
	Parsed  int
	Added   int
	Skipped int
	Errors  []error
}

// Pull clones or updates a deck repository under reposDir and returns the
// local checkout path.
func Pull(ctx context.Context, repoURL, reposDir string) (string, error) {
	localRepoPath, err := gitUrlToLocalPath(reposDir, repoURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(localRepoPath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := gitsource.Sync(ctx, repoURL, localRepoPath); err != nil {
		return "", err
	}
	return localRepoPath, nil
}

// Import reads items from each source, a file or a directory walked for
// .md, .xlsx and .csv files, and appends the ones whose front is not yet in
// the item file at itemsPath as new cards. Existing items keep their order
// and mirrored state. Unreadable sources are collected in Result.Errors and
// do not stop the import.
func Import(store Snapshotter, itemsPath string, sources ...string) (Result, error) {
	var res Result

	existing, err := readExisting(itemsPath)
	if err != nil {
		return res, fmt.Errorf("failed to read item file %s: %w", itemsPath, err)
	}
	cards := parser.ItemsToCards(existing)
	seen := make(map[string]bool, len(cards))
	for _, c := range cards {
		seen[c.Front] = true
	}

	target, _ := filepath.Abs(itemsPath)
	for _, source := range sources {
		walkErr := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if abs, _ := filepath.Abs(path); abs == target {
				return nil
			}

			items, parseErr := parseSource(path)
			if parseErr != nil {
				res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			}
			for _, item := range items {
				item = knol.Normalize(item)
				if item.Front == "" {
					continue
				}
				res.Parsed++
				if seen[item.Front] {
					res.Skipped++
					continue
				}
				seen[item.Front] = true
				cards = append(cards, domain.NewCard(domain.Item{Front: item.Front, Back: item.Back}))
				res.Added++
			}
			return nil
		})
		if walkErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("walking %s: %w", source, walkErr))
		}
	}

	if res.Added > 0 {
		if err := store.SaveSnapshot(itemsPath, cards); err != nil {
			return res, err
		}
	}

	slog.Info("Import complete",
		"items", itemsPath,
		"parsed", res.Parsed,
		"added", res.Added,
		"skipped", res.Skipped,
		"errors", len(res.Errors),
	)
	return res, nil
}

// readExisting reads the target item file. A missing or blank file is an
// empty deck.
func readExisting(itemsPath string) ([]domain.Item, error) {
	data, err := os.ReadFile(itemsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))) == 0 {
		return nil, nil
	}
	return parser.ReadItems(bytes.NewReader(data))
}

// parseSource picks a parser by file extension. Other files yield nothing.
func parseSource(path string) ([]domain.Item, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return parser.ParseMarkdownFile(path)
	case ".xlsx":
		return parser.ParseXLSX(path, "")
	case ".csv":
		return parser.ReadItemsFile(path)
	}
	return nil, nil
}

func gitUrlToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
