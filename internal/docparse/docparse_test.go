package docparse

import (
	"context"
	"strings"
	"testing"
)

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(PlainText{})

	out, err := reg.Parse(context.Background(), "boM.TXT", strings.NewReader("  STM32F103C8T6 x100\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "STM32F103C8T6 x100" {
		t.Fatalf("out = %q", out)
	}

	if _, err := reg.Parse(context.Background(), "specs.pdf", strings.NewReader("x")); err == nil {
		t.Fatal("unsupported extension accepted")
	}
	if reg.Supported("a.csv") != true || reg.Supported("a.docx") != false {
		t.Fatal("Supported misreports extensions")
	}
}

func TestPlainTextRejectsBinary(t *testing.T) {
	if _, err := (PlainText{}).Parse(context.Background(), "blob.txt", strings.NewReader("\xff\xfe\x00")); err == nil {
		t.Fatal("binary content accepted")
	}
}

func TestPlainTextSizeCap(t *testing.T) {
	p := PlainText{MaxBytes: 4}
	out, err := p.Parse(context.Background(), "big.txt", strings.NewReader("123456789"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "1234" {
		t.Fatalf("out = %q", out)
	}
}
