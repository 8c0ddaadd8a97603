package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

type block struct {
	question, answer, context string
}

// ParseMarkdownFile reads Q:/A: blocks from the file at path.
func ParseMarkdownFile(path string) ([]domain.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseMarkdown(file)
}

// ParseMarkdown extracts items from Q:/A:/C: blocks separated by a new
// question or a "---" line. The question is the front; the answer, followed
// by the context on its own line when present, is the back.
func ParseMarkdown(r io.Reader) ([]domain.Item, error) {
	scanner := bufio.NewScanner(r)
	var items []domain.Item
	var current block
	var lines []string
	currentState := seeking

	flush := func() {
		if len(lines) == 0 {
			return
		}
		content := strings.Join(lines, "\n")
		switch currentState {
		case readingQuestion:
			current.question = content
		case readingAnswer:
			current.answer = content
		case readingContext:
			current.context = content
		}
		lines = nil
	}

	finishItem := func() {
		flush()
		if current.question != "" {
			back := strings.TrimSpace(current.answer)
			if c := strings.TrimSpace(current.context); c != "" {
				back += "\n" + c
			}
			items = append(items, domain.Item{Front: strings.TrimSpace(current.question), Back: back})
		}
		current = block{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			finishItem()
			continue
		}

		var prefix string
		next := seeking
		switch {
		case strings.HasPrefix(line, questionPrefix):
			prefix, next = questionPrefix, readingQuestion
		case strings.HasPrefix(line, answerPrefix):
			prefix, next = answerPrefix, readingAnswer
		case strings.HasPrefix(line, contextPrefix):
			prefix, next = contextPrefix, readingContext
		}

		if next == seeking {
			if currentState != seeking {
				lines = append(lines, line)
			}
			continue
		}

		if next == readingQuestion && currentState != seeking {
			finishItem()
		} else {
			flush()
		}
		currentState = next
		lines = append(lines, strings.TrimPrefix(line[len(prefix):], " "))
	}

	finishItem()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
