package present

import (
	"bufio"
	"io"
	"strings"
)

const untitled = "(Untitled Slide)"

// ParseSlides returns the slides of a presentation source in order. A title
// in the front matter becomes the first slide; level one and two headings and
// horizontal rules start a new slide. Headings inside code fences are ignored.
// Slide indexes start at 1, lines are 1-based source lines.
func ParseSlides(r io.Reader) ([]Slide, error) {
	var (
		slides      []Slide
		sc          = bufio.NewScanner(r)
		lineNo      int
		frontMatter bool
		fence       string
		prevBlank   = true
	)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	add := func(title string, level, line int) {
		slides = append(slides, Slide{Title: title, Level: level, Line: line})
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")

		switch {
		case lineNo == 1 && line == "---":
			frontMatter = true
			continue
		case frontMatter:
			if line == "---" || line == "..." {
				frontMatter = false
				continue
			}
			if v, ok := strings.CutPrefix(line, "title:"); ok && len(slides) == 0 {
				if title := unquote(v); title != "" {
					add(title, 0, lineNo)
				}
			}
			continue
		}

		if fence != "" {
			if strings.HasPrefix(strings.TrimSpace(line), fence) {
				fence = ""
			}
			continue
		}
		if f := fenceOf(line); f != "" {
			fence = f
			continue
		}

		switch {
		case line == "":
		case prevBlank && (line == "---" || line == "***" || line == "* * *"):
			add(untitled, 2, lineNo)
		default:
			if level, title, ok := heading(line); ok {
				add(title, level, lineNo)
			}
		}
		prevBlank = line == ""
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for i := range slides {
		slides[i].Index = i + 1
	}
	return slides, nil
}

// heading recognizes ATX headings of level 1 and 2
func heading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 2 || len(line) == level || line[level] != ' ' {
		return 0, "", false
	}
	title := strings.TrimSpace(line[level:])
	// trailing attributes {#id .class}
	if i := strings.LastIndexByte(title, '{'); i >= 0 && strings.HasSuffix(title, "}") {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.TrimSpace(strings.TrimRight(title, "#"))
	if title == "" {
		title = untitled
	}
	return level, title, true
}

func fenceOf(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return ""
	}
	for _, f := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, f) {
			return f
		}
	}
	return ""
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// slideAt returns the index of the slide containing line, 1 when line
// is before the first slide.
func slideAt(slides []Slide, line int) int {
	idx := 1
	for _, s := range slides {
		if s.Line > line {
			break
		}
		idx = s.Index
	}
	return idx
}
