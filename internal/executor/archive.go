package executor

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// Archive compression types.
const (
	CompressionZip  = "zip"
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

func (e *Executor) archiveIO() ([]string, string, error) {
	var inputs []string
	for _, ds := range e.inputs {
		if f, ok := e.conf.Data.Get(ds); ok {
			inputs = append(inputs, f.Values...)
		}
	}
	if len(inputs) == 0 {
		return nil, "", stagehanderrors.NewInputFileError(e.Name(), "nothing to archive", nil)
	}
	if len(e.spec.Outputs) == 0 {
		return nil, "", stagehanderrors.NewSetupError(e.Name(), "archive stages need an output dataset", nil)
	}
	out, ok := e.conf.Data.Get(e.spec.Outputs[0])
	if !ok || len(out.Values) == 0 {
		return nil, "", stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("no file name for output %s", e.spec.Outputs[0]), nil)
	}
	return inputs, out.Values[0], nil
}

func (e *Executor) compression() string {
	c, ok := e.conf.Args.String(ArgCompression, e.scope())
	if !ok || c == "" {
		return CompressionNone
	}
	return c
}

func archivePreExecute(_ context.Context, e *Executor) error {
	inputs, output, err := e.archiveIO()
	if err != nil {
		return err
	}
	switch c := e.compression(); c {
	case CompressionZip:
		e.command = append([]string{CompressionZip, output}, inputs...)
		return nil
	case CompressionGzip, CompressionNone:
		exe, err := e.requireExe(e.conf.Settings.Tools.Archive)
		if err != nil {
			return err
		}
		cmd := []string{exe, "-c"}
		if c == CompressionGzip {
			cmd = append(cmd, "-z")
		}
		cmd = append(cmd, "-f", output)
		e.command = append(cmd, inputs...)
		return nil
	default:
		return stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("unsupported compression type %q", c), nil)
	}
}

// archiveExecute packs zip archives in-process and hands every other
// compression to the external tool.
func archiveExecute(ctx context.Context, e *Executor) error {
	if e.compression() != CompressionZip {
		return runCommand(ctx, e)
	}
	inputs, output, err := e.archiveIO()
	if err != nil {
		return err
	}

	logFile, err := os.Create(e.path(e.LogName()))
	if err != nil {
		return stagehanderrors.NewExecutionError(e.Name(), "cannot create logfile", err)
	}
	defer logFile.Close()

	if err := writeZip(ctx, e.path(output), e.workDir(), inputs, logFile); err != nil {
		fmt.Fprintf(logFile, "ERROR %v\n", err)
		e.log.Error(err, "zip archive failed")
		e.setReturnCode(1)
		return nil
	}
	e.setReturnCode(0)
	e.log.Infof("archived %d files into %s", len(inputs), output)
	return nil
}

func writeZip(ctx context.Context, target, dir string, inputs []string, log io.Writer) error {
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	for _, name := range inputs {
		if err := ctx.Err(); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		if err := addToZip(zw, dir, name); err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("add %s: %w", name, err)
		}
		fmt.Fprintf(log, "added %s\n", name)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addToZip(zw *zip.Writer, dir, name string) error {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, name)
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(name)
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
