package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// ErrMissingHeader is returned when an item file lacks the front/back columns.
var ErrMissingHeader = errors.New("item file header must name front and back columns")

// Header is the column layout of the canonical item file.
var Header = []string{"front", "back", "state", "lastSeen"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadItemsFile reads the canonical item file at path.
func ReadItemsFile(path string) ([]domain.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadItems(bytes.NewReader(data))
}

// ReadItems parses the canonical item CSV. Columns are matched by header
// name, so their order is free and state/lastSeen may be absent. Rows with
// an empty front are skipped. An unknown state value reads as New.
func ReadItems(r io.Reader) ([]domain.Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read item header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	if _, ok := cols["front"]; !ok {
		return nil, ErrMissingHeader
	}
	if _, ok := cols["back"]; !ok {
		return nil, ErrMissingHeader
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var items []domain.Item
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read item row: %w", err)
		}
		item := domain.Item{
			Front:    field(record, "front"),
			Back:     field(record, "back"),
			LastSeen: strings.TrimSpace(field(record, "lastSeen")),
		}
		if item.Front == "" {
			continue
		}
		if s, err := strconv.Atoi(strings.TrimSpace(field(record, "state"))); err == nil && domain.State(s).Valid() {
			item.State = domain.State(s)
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteItems writes cards in the canonical item layout.
func WriteItems(w io.Writer, cards []domain.Card) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, c := range cards {
		row := []string{c.Front, c.Back, strconv.Itoa(int(c.State)), c.LastSeen}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ItemsToCards turns items into fresh cards, keeping the mirrored state.
func ItemsToCards(items []domain.Item) []domain.Card {
	cards := make([]domain.Card, len(items))
	for i, item := range items {
		cards[i] = domain.NewCard(item)
	}
	return cards
}
