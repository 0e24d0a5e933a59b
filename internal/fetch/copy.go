package fetch

import (
	"context"
	"errors"
	"io"

	"golang.org/x/time/rate"
)

// copyBufferSize 与移动端原实现一致，每次读取 128KB。
const copyBufferSize = 128 * 1024

// copyResult 区分读端（上游）与写端（磁盘）的错误，便于分类。
type copyResult struct {
	written  int64
	readErr  error
	writeErr error
}

func copyWithProgress(
	ctx context.Context,
	dst io.Writer,
	src io.Reader,
	total int64,
	limiter *rate.Limiter,
	progress func(received, total int64),
) copyResult {
	var res copyResult
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			res.readErr = err
			return res
		}
		n, err := src.Read(buf)
		if n > 0 {
			if waitErr := waitTokens(ctx, limiter, n); waitErr != nil {
				res.readErr = waitErr
				return res
			}
			w, wErr := dst.Write(buf[:n])
			res.written += int64(w)
			if wErr != nil {
				res.writeErr = wErr
				return res
			}
			if w < n {
				res.writeErr = io.ErrShortWrite
				return res
			}
			if progress != nil {
				progress(res.written, total)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res
			}
			res.readErr = err
			return res
		}
	}
}

// waitTokens 按 burst 分段等待，避免 WaitN 在 n 大于 burst 时直接报错。
func waitTokens(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil {
		return nil
	}
	burst := limiter.Burst()
	for n > 0 {
		chunk := n
		if burst > 0 && chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
