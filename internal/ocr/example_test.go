package ocr_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"faimport/internal/ocr"
)

// Example reads an Amazon invoice, using Cloud Vision only for scanned copies.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vision, err := ocr.NewGoogleVisionOCRService(ctx, os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"))
	if err != nil {
		log.Fatalf("Failed to create OCR service: %v", err)
	}
	defer vision.Close()

	svc := ocr.NewLayeredOCRService(vision)

	pdfFile, err := os.Open("amazon_invoice.pdf")
	if err != nil {
		log.Fatalf("Failed to open PDF: %v", err)
	}
	defer pdfFile.Close()

	result, err := svc.ProcessPDFWithMetadata(ctx, pdfFile)
	if err != nil {
		log.Fatalf("Failed to process PDF: %v", err)
	}

	fmt.Printf("Engine: %s, pages: %d\n", result.Engine, result.PageCount)
	fmt.Println(result.Text)
}
