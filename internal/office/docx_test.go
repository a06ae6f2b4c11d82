package office

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p>` +
	`<w:fldSimple w:instr=" MERGEFIELD recipient_name \* MERGEFORMAT "><w:r><w:rPr><w:b/></w:rPr><w:t>«recipient_name»</w:t></w:r></w:fldSimple>` +
	`<w:r><w:fldChar w:fldCharType="begin"/></w:r><w:r><w:instrText xml:space="preserve"> MERGEFIELD title </w:instrText></w:r>` +
	`<w:r><w:fldChar w:fldCharType="separate"/></w:r><w:r><w:t>«title»</w:t></w:r><w:r><w:fldChar w:fldCharType="end"/></w:r>` +
	`<w:r><w:t>No. {{ certificate_number }}</w:t></w:r>` +
	`</w:p></w:body></w:document>`

const testHeader = `<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:p><w:r><w:t>«institute_name»</w:t></w:r></w:p></w:hdr>`

const testContentTypes = `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`

func writeTemplate(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "template.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"[Content_Types].xml":   testContentTypes,
		"word/document.xml":     testDocument,
		"word/header1.xml":      testHeader,
		"word/styles.xml":       "<w:styles/>",
		"word/media/image1.png": "{{ not_a_field }}",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func readPartFile(t *testing.T, docx, name string) string {
	t.Helper()
	r, err := zip.OpenReader(docx)
	require.NoError(t, err)
	defer r.Close()
	for _, f := range r.File {
		if f.Name == name {
			body, err := readPart(f)
			require.NoError(t, err)
			return string(body)
		}
	}
	t.Fatalf("%s not found in %s", name, docx)
	return ""
}

func TestDocxFields(t *testing.T) {
	template := writeTemplate(t, t.TempDir())
	fields, err := NewDocxMerger().Fields(template)
	require.NoError(t, err)
	assert.Equal(t, []string{"certificate_number", "institute_name", "recipient_name", "title"}, fields)
}

func TestDocxMerge(t *testing.T) {
	dir := t.TempDir()
	template := writeTemplate(t, dir)
	out := filepath.Join(dir, "merged.docx")

	err := NewDocxMerger().Merge(context.Background(), template, map[string]string{
		"recipient_name":     "Mr. A & B",
		"title":              "Widgets <v2>",
		"certificate_number": "2024/0008",
		"institute_name":     "Tech Institute",
	}, out)
	require.NoError(t, err)

	doc := readPartFile(t, out, "word/document.xml")
	assert.Contains(t, doc, `<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">Mr. A &amp; B</w:t></w:r>`)
	assert.Contains(t, doc, "Widgets &lt;v2&gt;")
	assert.Contains(t, doc, "No. 2024/0008")
	assert.NotContains(t, doc, "MERGEFIELD")
	assert.NotContains(t, doc, "fldChar")
	assert.NotContains(t, doc, "«")
	assert.NotContains(t, doc, "{{")

	assert.Contains(t, readPartFile(t, out, "word/header1.xml"), "Tech Institute")
	assert.Equal(t, testContentTypes, readPartFile(t, out, "[Content_Types].xml"))
	assert.Equal(t, "{{ not_a_field }}", readPartFile(t, out, "word/media/image1.png"))

	fields, err := NewDocxMerger().Fields(out)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestDocxMergeMissingValueIsEmpty(t *testing.T) {
	dir := t.TempDir()
	template := writeTemplate(t, dir)
	out := filepath.Join(dir, "merged.docx")

	require.NoError(t, NewDocxMerger().Merge(context.Background(), template, map[string]string{}, out))
	doc := readPartFile(t, out, "word/document.xml")
	assert.Contains(t, doc, "No. </w:t>")
	assert.NotContains(t, doc, "MERGEFIELD")
}

func TestDocxMergeRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	template := writeTemplate(t, dir)
	out := filepath.Join(dir, "merged.docx")
	require.NoError(t, os.WriteFile(out, []byte("keep"), 0o644))

	require.Error(t, NewDocxMerger().Merge(context.Background(), template, nil, out))
	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(body))
}

func TestDocxMergeBadTemplate(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.docx")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))

	_, err := NewDocxMerger().Fields(bad)
	require.Error(t, err)
	out := filepath.Join(dir, "out.docx")
	require.Error(t, NewDocxMerger().Merge(context.Background(), bad, nil, out))
	assert.NoFileExists(t, out)
}
