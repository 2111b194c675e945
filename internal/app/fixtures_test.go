package app

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"
)

func pngHeader(w, h uint32) []byte {
	b := []byte("\x89PNG\r\n\x1a\n")
	b = binary.BigEndian.AppendUint32(b, 13)
	b = append(b, "IHDR"...)
	b = binary.BigEndian.AppendUint32(b, w)
	b = binary.BigEndian.AppendUint32(b, h)
	b = append(b, 8, 6, 0, 0, 0)
	return append(b, 0, 0, 0, 0) // crc, unchecked
}

func jpegHeader(w, h uint16) []byte {
	b := []byte{0xFF, 0xD8}
	// APP0 / JFIF
	b = append(b, 0xFF, 0xE0, 0x00, 0x10)
	b = append(b, "JFIF\x00"...)
	b = append(b, 1, 1, 0, 0, 1, 0, 1, 0, 0)
	// SOF0
	b = append(b, 0xFF, 0xC0, 0x00, 0x11, 0x08)
	b = binary.BigEndian.AppendUint16(b, h)
	b = binary.BigEndian.AppendUint16(b, w)
	b = append(b, 3, 1, 0x22, 0, 2, 0x11, 1, 3, 0x11, 1)
	return append(b, 0xFF, 0xD9)
}

func gifHeader(w, h uint16) []byte {
	b := []byte("GIF89a")
	b = binary.LittleEndian.AppendUint16(b, w)
	b = binary.LittleEndian.AppendUint16(b, h)
	return append(b, 0xF7, 0, 0)
}

func webpHeader() []byte {
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, 30)
	return append(b, "WEBPVP8 "...)
}

func riffWebP(chunk string, payload []byte) []byte {
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, uint32(12+len(payload)))
	b = append(b, "WEBP"...)
	b = append(b, chunk...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...)
}

func webpExtended(w, h uint32) []byte {
	p := make([]byte, 4) // flags, reserved
	w, h = w-1, h-1
	p = append(p, byte(w), byte(w>>8), byte(w>>16))
	p = append(p, byte(h), byte(h>>8), byte(h>>16))
	return riffWebP("VP8X", p)
}

func webpLossy(w, h uint16) []byte {
	p := []byte{0x30, 0x01, 0x00, 0x9D, 0x01, 0x2A}
	p = binary.LittleEndian.AppendUint16(p, w)
	p = binary.LittleEndian.AppendUint16(p, h)
	return riffWebP("VP8 ", p)
}

func webpLossless(w, h uint32) []byte {
	p := []byte{0x2F}
	p = binary.LittleEndian.AppendUint32(p, (w-1)|(h-1)<<14)
	return riffWebP("VP8L", p)
}

func bmpHeader(w, h int32) []byte {
	b := []byte("BM")
	b = binary.LittleEndian.AppendUint32(b, 54)
	b = append(b, 0, 0, 0, 0)
	b = binary.LittleEndian.AppendUint32(b, 54)
	b = binary.LittleEndian.AppendUint32(b, 40)
	b = binary.LittleEndian.AppendUint32(b, uint32(w))
	b = binary.LittleEndian.AppendUint32(b, uint32(h))
	return append(b, 1, 0, 24, 0)
}

func icoHeader(w, h byte) []byte {
	return []byte{0, 0, 1, 0, 1, 0, w, h, 0, 0, 1, 0, 32, 0}
}

func pdfDocument() []byte {
	return []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
}

func cfbDocument(stream string) []byte {
	b := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	b = append(b, make([]byte, 504)...)
	if stream != "" {
		b = append(b, utf16le(stream)...)
	}
	return append(b, make([]byte, 64)...)
}

func zipArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte("<xml/>")); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
