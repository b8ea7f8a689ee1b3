package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Options struct {
	TesseractBin string
	PdftoppmBin  string
	DPI          int
	Language     string
}

// Engine OCRs images with tesseract and rasterizes PDF pages with pdftoppm.
type Engine struct {
	runner Runner
	opts   Options
}

func NewEngine(runner Runner, opts Options) *Engine {
	if runner == nil {
		runner = ExecRunner{}
	}
	if opts.TesseractBin == "" {
		opts.TesseractBin = "tesseract"
	}
	if opts.PdftoppmBin == "" {
		opts.PdftoppmBin = "pdftoppm"
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	return &Engine{runner: runner, opts: opts}
}

// RecognizeImage runs tesseract on an image and returns the page with word tokens.
func (e *Engine) RecognizeImage(ctx context.Context, image []byte, pageNo int) (domain.Page, error) {
	dir, err := os.MkdirTemp("", "docextract-ocr-")
	if err != nil {
		return domain.Page{}, fmt.Errorf("create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "page")
	if err := os.WriteFile(input, image, 0o600); err != nil {
		return domain.Page{}, fmt.Errorf("write ocr input: %w", err)
	}
	return e.recognizeFile(ctx, input, pageNo)
}

// RecognizePDFPage rasterizes one PDF page and OCRs it.
func (e *Engine) RecognizePDFPage(ctx context.Context, data []byte, pageNo int) (domain.Page, error) {
	dir, err := os.MkdirTemp("", "docextract-raster-")
	if err != nil {
		return domain.Page{}, fmt.Errorf("create raster workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return domain.Page{}, fmt.Errorf("write raster input: %w", err)
	}
	root := filepath.Join(dir, "page")
	page := strconv.Itoa(pageNo)
	if _, err := e.runner.Run(ctx, e.opts.PdftoppmBin,
		"-r", strconv.Itoa(e.opts.DPI), "-f", page, "-l", page, "-png", "-singlefile", input, root,
	); err != nil {
		return domain.Page{}, fmt.Errorf("rasterize page %d: %w", pageNo, err)
	}
	return e.recognizeFile(ctx, root+".png", pageNo)
}

func (e *Engine) recognizeFile(ctx context.Context, path string, pageNo int) (domain.Page, error) {
	out, err := e.runner.Run(ctx, e.opts.TesseractBin,
		path, "stdout", "-l", e.opts.Language, "--oem", "3", "--psm", "6", "tsv",
	)
	if err != nil {
		return domain.Page{}, fmt.Errorf("tesseract page %d: %w", pageNo, err)
	}
	tokens, err := ParseTSV(out, pageNo)
	if err != nil {
		return domain.Page{}, err
	}
	slog.Info("ocr_complete", "page_no", pageNo, "token_count", len(tokens))
	return domain.NewPage(pageNo, tokens, true), nil
}

// ParseTSV reads tesseract TSV output. Only word rows (level 5) with text and a non-negative
// confidence become tokens; the line id encodes block, paragraph and line numbers.
func ParseTSV(data []byte, pageNo int) ([]domain.Token, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		tokens []domain.Token
		header map[string]int
	)
	for scanner.Scan() {
		cols := strings.Split(scanner.Text(), "\t")
		if header == nil {
			header = make(map[string]int, len(cols))
			for i, name := range cols {
				header[strings.TrimSpace(name)] = i
			}
			for _, required := range []string{"level", "block_num", "par_num", "line_num", "left", "top", "width", "height", "conf", "text"} {
				if _, ok := header[required]; !ok {
					return nil, fmt.Errorf("tesseract tsv: missing column %q", required)
				}
			}
			continue
		}
		if len(cols) < len(header) {
			continue
		}
		if atoi(cols[header["level"]]) != 5 {
			continue
		}
		text := strings.TrimSpace(cols[header["text"]])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[header["conf"]]), 64)
		if err != nil || conf < 0 {
			continue
		}

		left := float64(atoi(cols[header["left"]]))
		top := float64(atoi(cols[header["top"]]))
		tokens = append(tokens, domain.Token{
			Text: text,
			BBox: domain.Rect{
				X0:   left,
				Y0:   top,
				X1:   left + float64(atoi(cols[header["width"]])),
				Y1:   top + float64(atoi(cols[header["height"]])),
				Page: pageNo,
			},
			LineID:     atoi(cols[header["block_num"]])*1000 + atoi(cols[header["par_num"]])*100 + atoi(cols[header["line_num"]]),
			Confidence: conf / 100,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tesseract tsv: %w", err)
	}
	return tokens, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
