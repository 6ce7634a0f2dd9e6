package converter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nconklindev/xlport/internal/types"

	"github.com/rs/zerolog"
)

// PreviewRowLimit is the number of sample rows Preview returns by default.
const PreviewRowLimit = 5

// Convert reads the first worksheet of req.InputPath and writes every data
// row to req.OutputPath in req.Format. Progress in [0,1] is sent on
// progressChan without blocking when it is non-nil.
//
// The input is fully validated (extension, header, at least one data row)
// before the output path is touched.
func Convert(ctx context.Context, req types.ConversionRequest, progressChan chan<- float64) (*types.ConversionResult, error) {
	log := zerolog.Ctx(ctx).With().
		Str("input", req.InputPath).
		Str("output", req.OutputPath).
		Stringer("format", req.Format).
		Logger()
	start := time.Now()

	reportProgress := func(p float64) {
		if progressChan != nil {
			select {
			case progressChan <- p:
			default:
			}
		}
	}

	if !types.IsSpreadsheet(req.InputPath) {
		return nil, newConversionError("open", req.InputPath,
			fmt.Errorf("%w %q", ErrUnsupportedFormat, filepath.Ext(req.InputPath)))
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return nil, newConversionError("open", req.InputPath, err)
	}

	r, err := openSheet(req.InputPath)
	if err != nil {
		return nil, newConversionError("open", req.InputPath, err)
	}
	defer r.Close()

	headers, err := r.Header()
	if err != nil {
		return nil, newConversionError("read", req.InputPath, err)
	}

	row, err := r.Next()
	if err == io.EOF {
		err = ErrNoData
	}
	if err != nil {
		return nil, newConversionError("read", req.InputPath, err)
	}

	log.Debug().Str("sheet", r.sheet).Strs("headers", headers).Msg("header read")

	out, err := openSink(ctx, req.Format, req.OutputPath, headers)
	if err != nil {
		return nil, newConversionError("write", req.OutputPath, err)
	}
	defer out.Close()

	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, newConversionError("write", req.OutputPath, err)
		}
		if err := out.WriteRow(ctx, row); err != nil {
			return nil, newConversionError("write", req.OutputPath, err)
		}
		written++
		reportProgress(r.Progress())

		row, err = r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newConversionError("read", req.InputPath, err)
		}
	}

	if err := out.Commit(); err != nil {
		return nil, newConversionError("write", req.OutputPath, err)
	}
	reportProgress(1)

	log.Info().
		Int("rows", written).
		Int("columns", len(headers)).
		Dur("elapsed", time.Since(start)).
		Msg("conversion complete")

	return &types.ConversionResult{
		InputFile:   req.InputPath,
		OutputFile:  req.OutputPath,
		Format:      req.Format,
		Columns:     headers,
		RowsWritten: written,
	}, nil
}

// Preview reads the derived headers and up to limit data rows from the
// first worksheet of filePath.
func Preview(filePath string, limit int) (*types.FileData, error) {
	if !types.IsSpreadsheet(filePath) {
		return nil, newConversionError("open", filePath,
			fmt.Errorf("%w %q", ErrUnsupportedFormat, filepath.Ext(filePath)))
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, newConversionError("open", filePath, err)
	}

	r, err := openSheet(filePath)
	if err != nil {
		return nil, newConversionError("open", filePath, err)
	}
	defer r.Close()

	headers, err := r.Header()
	if err != nil {
		return nil, newConversionError("read", filePath, err)
	}

	data := &types.FileData{
		SheetName: r.sheet,
		Headers:   headers,
		Size:      info.Size(),
	}
	for len(data.Rows) < limit {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newConversionError("read", filePath, err)
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}
