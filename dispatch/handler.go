package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/projecthangar/mro-service/internal/awsutil"
	"github.com/projecthangar/mro-service/internal/db"
)

var csvExtensions = map[string]bool{".csv": true}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".tif": true, ".heic": true, ".heif": true,
}

// Handler holds dependencies for the Dispatch Lambda.
type Handler struct {
	db       db.DB
	s3       awsutil.S3Client
	sqs      awsutil.SQSClient
	bucket   string
	queueURL string
	// mutoolPath overrides the default mutool binary path (for testing)
	mutoolPath string
	// heifConvertPath overrides the default heif-convert binary path (for testing)
	heifConvertPath string
}

// Handle processes S3 PUT events for uploaded documents. CSVs are queued
// as-is; images and PDFs are normalized to a JPEG the vision path can decode
// before queueing.
func (h *Handler) Handle(ctx context.Context, event events.S3Event) error {
	for _, record := range event.Records {
		s3Key, _ := url.QueryUnescape(record.S3.Object.Key)
		bucket := record.S3.Bucket.Name

		log.Printf("Dispatching upload: s3://%s/%s", bucket, s3Key)

		parts := strings.Split(s3Key, "/")
		if len(parts) < 3 || parts[0] != "uploads" {
			log.Printf("Ignoring key %s — not in uploads/ prefix", s3Key)
			continue
		}
		batchID := parts[1]
		filename := strings.Join(parts[2:], "/")

		if err := h.dispatch(ctx, batchID, filename, s3Key, bucket); err != nil {
			h.markFailed(ctx, batchID, err.Error())
			return err
		}
	}
	return nil
}

func (h *Handler) dispatch(ctx context.Context, batchID, filename, s3Key, bucket string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	if csvExtensions[ext] {
		return h.sendIngestMessage(ctx, batchID, s3Key, "csv")
	}
	if ext == ".pdf" || imageExtensions[ext] {
		return h.dispatchImage(ctx, batchID, s3Key, bucket, ext)
	}
	return fmt.Errorf("unsupported file type: %s", ext)
}

// dispatchImage downloads the upload, converts it to a plain JPEG when
// needed, stores the result under pages/, and queues it for extraction.
func (h *Handler) dispatchImage(ctx context.Context, batchID, s3Key, bucket, ext string) error {
	tmpdir, err := os.MkdirTemp("", "mro-dispatch-*")
	if err != nil {
		return fmt.Errorf("create tmpdir: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	localFile := filepath.Join(tmpdir, "upload"+ext)

	reader, err := h.s3.GetObject(ctx, bucket, s3Key)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if err := os.WriteFile(localFile, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	var normalized string
	if ext == ".pdf" {
		normalized, err = h.renderPDF(ctx, localFile, tmpdir)
	} else {
		normalized, err = h.normalizeImage(localFile, ext)
	}
	if err != nil {
		return err
	}

	// Already a decodable image, queue the original key directly.
	if normalized == localFile {
		return h.sendIngestMessage(ctx, batchID, s3Key, "image")
	}

	pageKey := fmt.Sprintf("pages/%s/page_0001.jpg", batchID)
	fileData, err := os.ReadFile(normalized)
	if err != nil {
		return fmt.Errorf("read normalized image: %w", err)
	}
	if err := h.s3.PutObject(ctx, h.bucket, pageKey, "image/jpeg", bytes.NewReader(fileData)); err != nil {
		return fmt.Errorf("upload normalized image: %w", err)
	}

	return h.sendIngestMessage(ctx, batchID, pageKey, "image")
}

// renderPDF rasterizes the first page of a certificate PDF to JPEG. Extra
// pages are dropped with a warning since a certificate is a one-page
// document.
func (h *Handler) renderPDF(ctx context.Context, pdfPath, tmpdir string) (string, error) {
	mutool := h.getMutoolPath()

	outputPattern := filepath.Join(tmpdir, "page-%04d.jpg")
	cmd := exec.CommandContext(ctx, mutool, "draw", "-o", outputPattern, "-r", "200", "-F", "jpeg", pdfPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mutool draw: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(tmpdir, "page-*.jpg"))
	if err != nil {
		return "", fmt.Errorf("glob pages: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("pdf produced no pages")
	}
	if len(matches) > 1 {
		log.Printf("WARNING: pdf has %d pages, using only the first", len(matches))
	}
	return matches[0], nil
}

// normalizeImage converts non-JPEG/PNG images to JPEG so the extraction
// Lambda can hand them to the vision model.
//
// JPEG/PNG: returned as-is.
// HEIC/HEIF: converted via bundled heif-convert binary.
// GIF/BMP/TIFF/WebP: decoded with Go stdlib/x decoders and re-encoded as JPEG.
func (h *Handler) normalizeImage(localFile, ext string) (string, error) {
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return localFile, nil

	case ".heic", ".heif":
		outPath := strings.TrimSuffix(localFile, ext) + ".jpg"
		heifConvert := h.getHeifConvertPath()
		cmd := exec.Command(heifConvert, localFile, outPath)
		if output, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("heif-convert: %w (%s)", err, string(output))
		}
		return outPath, nil

	case ".gif", ".bmp", ".tiff", ".tif", ".webp":
		f, err := os.Open(localFile)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", ext, err)
		}
		defer f.Close()

		img, _, err := image.Decode(f)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", ext, err)
		}

		outPath := strings.TrimSuffix(localFile, ext) + ".jpg"
		out, err := os.Create(outPath)
		if err != nil {
			return "", fmt.Errorf("create output: %w", err)
		}
		if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 90}); err != nil {
			out.Close()
			os.Remove(outPath)
			return "", fmt.Errorf("encode jpeg: %w", err)
		}
		out.Close()
		return outPath, nil

	default:
		return localFile, nil
	}
}

func (h *Handler) markFailed(ctx context.Context, batchID, message string) {
	_ = h.db.Exec(ctx,
		"UPDATE ingest_batches SET processing_status = 'failed', error_message = $1, updated_at = NOW() WHERE id = $2",
		message, batchID)
}

func (h *Handler) sendIngestMessage(ctx context.Context, batchID, s3Key, fileKind string) error {
	msg, _ := json.Marshal(map[string]any{
		"batchId":  batchID,
		"s3Key":    s3Key,
		"fileKind": fileKind,
	})
	return h.sqs.SendMessage(ctx, h.queueURL, string(msg))
}

func (h *Handler) getMutoolPath() string {
	if h.mutoolPath != "" {
		return h.mutoolPath
	}
	// Look for bundled binary relative to Lambda executable
	execDir, _ := os.Executable()
	bundled := filepath.Join(filepath.Dir(execDir), "bin", "mutool-arm64")
	if _, err := os.Stat(bundled); err == nil {
		return bundled
	}
	// Fall back to PATH
	return "mutool"
}

func (h *Handler) getHeifConvertPath() string {
	if h.heifConvertPath != "" {
		return h.heifConvertPath
	}
	// Look for bundled binary relative to Lambda executable
	execDir, _ := os.Executable()
	bundled := filepath.Join(filepath.Dir(execDir), "bin", "heif-convert-arm64")
	if _, err := os.Stat(bundled); err == nil {
		return bundled
	}
	// Fall back to PATH
	return "heif-convert"
}
