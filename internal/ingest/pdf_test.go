package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal uncompressed PDF with one text line per page.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	n := len(pages)
	// Objects: 1 catalog, 2 pages tree, 3 font, then a page and a content
	// stream per input page.
	objects := make([]string, 0, 3+2*n)
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFExtractor_Extract(t *testing.T) {
	data := buildPDF(t, "First page text.", "Second page text.", "Third page text.")
	require.True(t, LooksLikePDF(data))

	result, err := NewPDFExtractor().Extract(data)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Pages)
	assert.Empty(t, result.PageErrors)
	assert.Contains(t, result.Text, "First page text.")
	assert.Contains(t, result.Text, "Third page text.")
	assert.Less(t, bytes.Index([]byte(result.Text), []byte("First")), bytes.Index([]byte(result.Text), []byte("Second")))
	assert.False(t, result.Empty())
}

func TestPDFExtractor_Unreadable(t *testing.T) {
	_, err := NewPDFExtractor().Extract([]byte("definitely not a pdf"))
	assert.ErrorIs(t, err, ErrUnreadableDocument)

	_, err = NewPDFExtractor().Extract(nil)
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}

type fakePages struct {
	texts []string
	fail  map[int]bool
	panic map[int]bool
}

func (f fakePages) NumPage() int { return len(f.texts) }

func (f fakePages) PageText(num int) (string, error) {
	if f.panic[num] {
		panic("corrupt content stream")
	}
	if f.fail[num] {
		return "", errors.New("bad font")
	}
	return f.texts[num-1], nil
}

func TestExtractPages_IsolatesFailingPages(t *testing.T) {
	src := fakePages{
		texts: []string{"one ", "two ", "three ", "four"},
		fail:  map[int]bool{2: true},
		panic: map[int]bool{3: true},
	}

	result := extractPages(src)

	assert.Equal(t, 4, result.Pages)
	assert.Equal(t, "one four", result.Text)
	require.Len(t, result.PageErrors, 2)
	assert.Equal(t, 2, result.PageErrors[0].Page)
	assert.Equal(t, 3, result.PageErrors[1].Page)
	assert.Contains(t, result.PageErrors[1].Error(), "corrupt content stream")
}

func TestExtractPages_ConcatenatesWithoutSeparator(t *testing.T) {
	result := extractPages(fakePages{texts: []string{"ab", "cd", "ef"}})
	assert.Equal(t, "abcdef", result.Text)
	assert.Empty(t, result.PageErrors)
}

func TestExtraction_Empty(t *testing.T) {
	assert.True(t, (&Extraction{Text: " \n\t"}).Empty())
	assert.False(t, (&Extraction{Text: "x"}).Empty())
}
