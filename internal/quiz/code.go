package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// codeAlphabet leaves out characters that are easy to misread: 0/O, 1/I/L.
	codeAlphabet        = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	defaultCodeLength   = 6
	defaultCodeAttempts = 5
)

func (s *Service) newCode() string {
	var b strings.Builder
	b.Grow(s.codeLength)
	for range s.codeLength {
		b.WriteByte(codeAlphabet[s.src.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// uniqueCode generates join codes until one is not in use. After codeAttempts collisions it keeps trying
// without bound, which only ends early when ctx is done.
func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := s.newCode()
		exists, err := s.store.QuizCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check quiz code: %w", err)
		}
		if !exists {
			return code, nil
		}

		if i+1 == s.codeAttempts {
			slog.WarnContext(ctx, "quiz: join code space crowded, retrying without bound", "attempts", i+1)
		}
	}
}

// NormalizeCode maps user typed join codes onto the stored form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
