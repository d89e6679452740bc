package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Research holds the output of the research stage. Stored as jsonb;
// the zero value means the stage has not produced anything yet.
type Research struct {
	Text      string   `json:"text"`
	SourceURL string   `json:"source_url,omitempty"`
	Facts     []string `json:"facts,omitempty"`
}

func (r Research) IsZero() bool {
	return r.Text == "" && len(r.Facts) == 0
}

func (r Research) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Research) Scan(src interface{}) error {
	return scanJSON(src, r)
}

type SegmentType string

const (
	SegmentIntro SegmentType = "intro"
	SegmentMain  SegmentType = "main"
	SegmentOutro SegmentType = "outro"
)

// ScriptLine is one spoken line of a script segment.
type ScriptLine struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

type ScriptSegment struct {
	Type  SegmentType  `json:"type"`
	Lines []ScriptLine `json:"lines"`
}

// Script is one structured episode script.
type Script struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Segments    []ScriptSegment `json:"segments"`
}

// Validate rejects malformed provider output: every segment must carry at
// least one line, every line a non-empty speaker and text, and the segment
// type must be one of intro/main/outro.
func (s *Script) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("script title must not be empty")
	}
	if len(s.Segments) == 0 {
		return fmt.Errorf("script must contain at least one segment")
	}
	for i, seg := range s.Segments {
		switch seg.Type {
		case SegmentIntro, SegmentMain, SegmentOutro:
		default:
			return fmt.Errorf("segment %d has unknown type %q", i, seg.Type)
		}
		if len(seg.Lines) == 0 {
			return fmt.Errorf("segment %d (%s) has no lines", i, seg.Type)
		}
		for j, line := range seg.Lines {
			if strings.TrimSpace(line.Speaker) == "" {
				return fmt.Errorf("segment %d line %d has no speaker", i, j)
			}
			if strings.TrimSpace(line.Text) == "" {
				return fmt.Errorf("segment %d line %d has no text", i, j)
			}
		}
	}
	return nil
}

// TTSLine is the ephemeral unit of work for the voice stage, flattened from
// a script in segment order. Never persisted independently.
type TTSLine struct {
	ID      string
	Speaker string
	Text    string
	Emotion string
}

// Lines flattens the script into the ordered TTS line list, assigning
// positional ids to lines the provider left unidentified.
func (s *Script) Lines() []TTSLine {
	var lines []TTSLine
	n := 0
	for _, seg := range s.Segments {
		for _, l := range seg.Lines {
			id := l.ID
			if id == "" {
				id = fmt.Sprintf("line-%d", n)
			}
			lines = append(lines, TTSLine{ID: id, Speaker: l.Speaker, Text: l.Text, Emotion: l.Emotion})
			n++
		}
	}
	return lines
}

// ScriptList is the per-episode script collection. Stored as jsonb.
type ScriptList []Script

func (s ScriptList) Value() (driver.Value, error) {
	if s == nil {
		s = ScriptList{}
	}
	return json.Marshal(s)
}

func (s *ScriptList) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Segment is one ordered audio artifact produced by the voice stage.
// Order is significant and preserved through download and merge.
type Segment struct {
	LineID string `json:"line_id,omitempty"`
	URL    string `json:"url"`
}

// Segments is the ordered audio segment list. Stored as jsonb.
type Segments []Segment

func (a Segments) Value() (driver.Value, error) {
	if a == nil {
		a = Segments{}
	}
	return json.Marshal(a)
}

func (a *Segments) Scan(src interface{}) error {
	return scanJSON(src, a)
}
