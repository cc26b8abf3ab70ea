package file

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GenesisHash is the prev_hash for the first line of a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// maxLineSize bounds a single JSONL line when scanning.
const maxLineSize = 16 * 1024 * 1024

// chainLog is one append-only JSONL file. Each line's prev_hash is the hash
// of the previous line, forming a tamper-evident chain.
type chainLog struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// openChain opens (or creates) a log for appending and recovers the chain
// tail from the last line.
func openChain(path string) (*chainLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		var lastLine []byte
		err := scanLines(path, func(_ int, line []byte) error {
			lastLine = line
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &chainLog{
		path:     path,
		file:     file,
		prevHash: prevHash,
	}, nil
}

// append sets the line's PrevHash, writes it and syncs to disk.
func (l *chainLog) append(line *Line) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line.PrevHash = l.prevHash

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	l.prevHash = HashLine(data)
	return nil
}

func (l *chainLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// scanLines calls fn with a private copy of every non-empty line.
func scanLines(path string, fn func(lineNum int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		lineNum++

		// Copy, since the scanner reuses its buffer
		line := make([]byte, len(raw))
		copy(line, raw)

		if err := fn(lineNum, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify reads a log and validates the hash chain. Returns Valid=true if the
// chain is intact, or details about the first broken link.
func Verify(path string) VerifyResult {
	var prevLine []byte
	var result *VerifyResult
	lines := 0

	err := scanLines(path, func(lineNum int, line []byte) error {
		lines = lineNum

		var entry Line
		if err := json.Unmarshal(line, &entry); err != nil {
			result = &VerifyResult{Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
			return errStop
		}

		expected := GenesisHash
		if lineNum > 1 {
			expected = HashLine(prevLine)
		}
		if entry.PrevHash != expected {
			result = &VerifyResult{
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", expected, entry.PrevHash),
				ErrorLine: lineNum,
			}
			return errStop
		}

		prevLine = line
		return nil
	})

	if result != nil {
		return *result
	}
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: lines}
}
