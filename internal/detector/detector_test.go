package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

func TestClassifyTextSQLInjection(t *testing.T) {
	inputs := []string{
		`' OR '1'='1`,
		`admin'--`,
		`1 OR 1=1`,
		`SELECT * FROM users`,
		`; DROP TABLE patients`,
		`UNION SELECT password FROM staff`,
	}
	for _, input := range inputs {
		tags := ClassifyText(input)
		assert.Contains(t, tags, models.EventSQLInjectionAttempt, "input %q", input)
	}
}

func TestClassifyTextXSS(t *testing.T) {
	inputs := []string{
		`<script>alert(1)</script>`,
		`<SCRIPT src=evil.js>`,
		`javascript:alert(1)`,
		`<img src=x onerror=alert(1)>`,
		`<iframe src=//evil>`,
		`<svg onload=fetch(x)>`,
		`document.cookie`,
	}
	for _, input := range inputs {
		tags := ClassifyText(input)
		assert.Contains(t, tags, models.EventXSSAttempt, "input %q", input)
	}
}

func TestClassifyTextMultipleTags(t *testing.T) {
	// Quote trips the SQL patterns, script tag trips the XSS patterns.
	tags := ClassifyText(`<script>alert('pwned')</script>`)
	assert.Contains(t, tags, models.EventSQLInjectionAttempt)
	assert.Contains(t, tags, models.EventXSSAttempt)
}

func TestClassifyTextBenign(t *testing.T) {
	inputs := []string{
		"patient records",
		"cardiology department",
		"monthly attendance report",
	}
	for _, input := range inputs {
		assert.Empty(t, ClassifyText(input), "input %q", input)
	}
}

func TestClassifyTextEmpty(t *testing.T) {
	assert.Nil(t, ClassifyText(""))
}

func TestClassifyTextArbitraryBytes(t *testing.T) {
	assert.NotPanics(t, func() {
		ClassifyText("\x00\xff\xfe\x01binary junk")
		ClassifyText(string(make([]byte, 4096)))
	})
}

func TestClassifyFilenameMalicious(t *testing.T) {
	names := []string{
		"shell.php",
		"SHELL.PHP",
		"backdoor.jsp",
		"payload.exe",
		"run.bat",
		"job.cmd",
		"saver.scr",
		"page.asp",
		// Substring match catches double-extension smuggling.
		"shell.php.pdf",
		"invoice.exe.txt",
	}
	for _, name := range names {
		tags := ClassifyFilename(name, "application/pdf", 1024)
		assert.Equal(t, []models.EventKind{models.EventMaliciousFileUpload}, tags, "name %q", name)
	}
}

func TestClassifyFilenameClean(t *testing.T) {
	names := []string{"report.pdf", "notes.docx", "scan.png", "data.csv"}
	for _, name := range names {
		assert.Empty(t, ClassifyFilename(name, "application/octet-stream", 1<<20), "name %q", name)
	}
}

func TestClassifyFilenameEmpty(t *testing.T) {
	assert.Nil(t, ClassifyFilename("", "text/plain", 0))
}

func TestClassifyFilenameIgnoresDeclaredMIME(t *testing.T) {
	// Declared type and size must not change the verdict.
	withLie := ClassifyFilename("virus.exe", "image/png", 10)
	withTruth := ClassifyFilename("virus.exe", "application/x-msdownload", 1<<30)
	assert.Equal(t, withTruth, withLie)
}

func TestHasQuote(t *testing.T) {
	assert.True(t, HasQuote(`admin'`))
	assert.True(t, HasQuote(`say "hi"`))
	assert.False(t, HasQuote("admin"))
	assert.False(t, HasQuote(""))
}
