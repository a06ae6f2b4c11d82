// Package office wraps the word-processing side of certificate production:
// filling DOCX templates and converting them to PDF with LibreOffice.
package office

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

var (
	// <w:fldSimple w:instr=" MERGEFIELD name \* MERGEFORMAT ">...</w:fldSimple>
	simpleFieldRegex = regexp.MustCompile(`(?s)<w:fldSimple\b[^>]*?w:instr="\s*MERGEFIELD\s+"?([\p{L}\p{N}_]+)"?[^"]*"[^>]*?(?:/>|>(.*?)</w:fldSimple>)`)
	instrFieldRegex  = regexp.MustCompile(`MERGEFIELD\s+"?([\p{L}\p{N}_]+)"?`)
	runPropsRegex    = regexp.MustCompile(`(?s)<w:rPr>.*?</w:rPr>`)
	instrTextRegex   = regexp.MustCompile(`(?s)<w:instrText[^>]*>(.*?)</w:instrText>`)
	// «name» and {{name}} placeholders typed straight into the text.
	placeholderRegex = regexp.MustCompile(`(?:«|&#171;|\{\{\s*)([\p{L}\p{N}_]+)(?:»|&#187;|\s*\}\})`)
)

// DocxMerger fills MERGEFIELDs and inline placeholders of a .docx template.
// Headers and footers are merged along with the body.
type DocxMerger struct{}

func NewDocxMerger() *DocxMerger { return &DocxMerger{} }

// Fields lists the distinct merge fields referenced by the template.
func (m *DocxMerger) Fields(template string) ([]string, error) {
	r, err := zip.OpenReader(template)
	if err != nil {
		return nil, fmt.Errorf("failed to open template %s: %w", template, err)
	}
	defer r.Close()

	seen := map[string]bool{}
	for _, f := range r.File {
		if !isMergePart(f.Name) {
			continue
		}
		body, err := readPart(f)
		if err != nil {
			return nil, err
		}
		for _, name := range partFields(body) {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Merge writes a copy of template to outPath with every field replaced by its
// value. Fields without a value merge as empty text.
func (m *DocxMerger) Merge(ctx context.Context, template string, fields map[string]string, outPath string) error {
	r, err := zip.OpenReader(template)
	if err != nil {
		return fmt.Errorf("failed to open template %s: %w", template, err)
	}
	defer r.Close()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create merged document: %w", err)
	}
	zw := zip.NewWriter(out)

	err = func() error {
		for _, f := range r.File {
			if err := ctx.Err(); err != nil {
				return err
			}
			hdr := f.FileHeader
			w, err := zw.CreateHeader(&hdr)
			if err != nil {
				return fmt.Errorf("failed to add %s: %w", f.Name, err)
			}
			if !isMergePart(f.Name) {
				rc, err := f.Open()
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", f.Name, err)
				}
				_, err = io.Copy(w, rc)
				rc.Close()
				if err != nil {
					return fmt.Errorf("failed to copy %s: %w", f.Name, err)
				}
				continue
			}
			body, err := readPart(f)
			if err != nil {
				return err
			}
			if _, err := w.Write(mergePart(body, fields)); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.Name, err)
			}
		}
		return zw.Close()
	}()
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close merged document: %w", cerr)
	}
	if err != nil {
		os.Remove(outPath)
		return err
	}
	return nil
}

func isMergePart(name string) bool {
	if !strings.HasPrefix(name, "word/") || !strings.HasSuffix(name, ".xml") {
		return false
	}
	base := strings.TrimPrefix(name, "word/")
	return base == "document.xml" || strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return body, nil
}

func partFields(body []byte) []string {
	var names []string
	for _, m := range simpleFieldRegex.FindAllSubmatch(body, -1) {
		names = append(names, string(m[1]))
	}
	for _, m := range instrTextRegex.FindAllSubmatch(body, -1) {
		if f := instrFieldRegex.FindSubmatch(m[1]); f != nil {
			names = append(names, string(f[1]))
		}
	}
	for _, m := range placeholderRegex.FindAllSubmatch(body, -1) {
		names = append(names, string(m[1]))
	}
	return names
}

// mergePart rewrites one WordprocessingML part.
func mergePart(body []byte, fields map[string]string) []byte {
	body = simpleFieldRegex.ReplaceAllFunc(body, func(match []byte) []byte {
		sub := simpleFieldRegex.FindSubmatch(match)
		return textRun(runProps(sub[2]), fields[string(sub[1])])
	})
	body = mergeComplexFields(body, fields)
	return placeholderRegex.ReplaceAllFunc(body, func(match []byte) []byte {
		sub := placeholderRegex.FindSubmatch(match)
		return escape(fields[string(sub[1])])
	})
}

// mergeComplexFields replaces begin/instr/separate/end field sequences whose
// instruction is a MERGEFIELD with a single plain run.
func mergeComplexFields(body []byte, fields map[string]string) []byte {
	const begin = `w:fldCharType="begin"`
	const end = `w:fldCharType="end"`
	var out bytes.Buffer
	rest := body
	for {
		b := bytes.Index(rest, []byte(begin))
		if b < 0 {
			break
		}
		runStart := lastRunOpen(rest[:b])
		e := bytes.Index(rest[b:], []byte(end))
		if runStart < 0 || e < 0 {
			break
		}
		closeRel := bytes.Index(rest[b+e:], []byte("</w:r>"))
		if closeRel < 0 {
			break
		}
		runEnd := b + e + closeRel + len("</w:r>")
		field := rest[runStart:runEnd]

		name := ""
		for _, m := range instrTextRegex.FindAllSubmatch(field, -1) {
			if f := instrFieldRegex.FindSubmatch(m[1]); f != nil {
				name = string(f[1])
				break
			}
		}
		out.Write(rest[:runStart])
		if name == "" {
			out.Write(field)
		} else {
			out.Write(textRun(runProps(field), fields[name]))
		}
		rest = rest[runEnd:]
	}
	out.Write(rest)
	return out.Bytes()
}

// lastRunOpen finds the start of the <w:r> element enclosing the tail of b.
func lastRunOpen(b []byte) int {
	for i := len(b); i > 0; {
		j := bytes.LastIndex(b[:i], []byte("<w:r"))
		if j < 0 {
			return -1
		}
		if next := j + len("<w:r"); next < len(b) && (b[next] == '>' || b[next] == ' ') {
			return j
		}
		i = j
	}
	return -1
}

func runProps(b []byte) []byte {
	return runPropsRegex.Find(b)
}

func textRun(props []byte, value string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<w:r>")
	buf.Write(props)
	buf.WriteString(`<w:t xml:space="preserve">`)
	buf.Write(escape(value))
	buf.WriteString("</w:t></w:r>")
	return buf.Bytes()
}

func escape(s string) []byte {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.Bytes()
}
