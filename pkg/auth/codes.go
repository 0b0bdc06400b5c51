package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/metafates/gache"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
	"igfeed/pkg/config"
	"igfeed/pkg/instagram"
	"igfeed/pkg/logger"
)

// VerificationCodeEnv is read by EnvCodeSource
const VerificationCodeEnv = "IGFEED_VERIFICATION_CODE"

const keyringCodePrefix = "code_"

// codeEntry is one pending verification code
type codeEntry struct {
	Code    string    `json:"code"`
	SavedAt time.Time `json:"saved_at"`
}

type codeFile struct {
	Codes map[string]codeEntry `json:"codes"`
}

// gacheFs lets gache read and write through afero
type gacheFs struct {
	fs afero.Fs
}

func (g gacheFs) OpenFile(name string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	return g.fs.OpenFile(name, flag, perm)
}

func (g gacheFs) MkdirAll(path string, perm os.FileMode) error {
	return g.fs.MkdirAll(path, perm)
}

// CacheCodeStore is a file-backed map from identity to verification code. Another process, usually
// `igfeed code set`, puts the code; the poller reads it. A code is consumed by the read that returns it
// and ignored once older than the lifetime.
type CacheCodeStore struct {
	fs       afero.Fs
	path     string
	lifetime time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewCacheCodeStore creates a store at path. A zero lifetime keeps codes until they are read.
func NewCacheCodeStore(fs afero.Fs, path string, lifetime time.Duration) *CacheCodeStore {
	return &CacheCodeStore{fs: fs, path: path, lifetime: lifetime, now: time.Now}
}

// cache opens the file afresh; gache keeps what it read in memory, and writes by other processes must
// be seen on every lookup
func (c *CacheCodeStore) cache() *gache.Cache[*codeFile] {
	return gache.New[*codeFile](&gache.Options{
		Path:       c.path,
		FileSystem: gacheFs{fs: c.fs},
	})
}

func (c *CacheCodeStore) load(cache *gache.Cache[*codeFile]) (*codeFile, error) {
	if exists, err := afero.Exists(c.fs, c.path); err != nil || !exists {
		return &codeFile{Codes: make(map[string]codeEntry)}, err
	}

	data, expired, err := cache.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read code store: %w", err)
	}
	if expired || data == nil || data.Codes == nil {
		return &codeFile{Codes: make(map[string]codeEntry)}, nil
	}
	return data, nil
}

// Put stores code for identity, replacing any pending one
func (c *CacheCodeStore) Put(identity, code string) error {
	identity, code = strings.TrimSpace(identity), strings.TrimSpace(code)
	if identity == "" || code == "" {
		return errors.New("identity and code are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.cache()
	data, err := c.load(cache)
	if err != nil {
		return err
	}
	data.Codes[identity] = codeEntry{Code: code, SavedAt: c.now()}
	return cache.Set(data)
}

// Code implements instagram.CodeSource. It returns "" while no fresh code is pending.
func (c *CacheCodeStore) Code(ctx context.Context, identity string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.cache()
	data, err := c.load(cache)
	if err != nil {
		return "", err
	}

	entry, ok := data.Codes[identity]
	if !ok {
		return "", nil
	}

	delete(data.Codes, identity)
	if err := cache.Set(data); err != nil {
		return "", err
	}

	if c.lifetime > 0 && c.now().Sub(entry.SavedAt) > c.lifetime {
		return "", nil
	}
	return entry.Code, nil
}

// Clear drops the pending code of identity
func (c *CacheCodeStore) Clear(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.cache()
	data, err := c.load(cache)
	if err != nil {
		return err
	}
	if _, ok := data.Codes[identity]; !ok {
		return nil
	}
	delete(data.Codes, identity)
	return cache.Set(data)
}

// KeyringCodeSource reads codes stored in the system keychain with PutKeyringCode
type KeyringCodeSource struct{}

// PutKeyringCode stores code for identity in the system keychain
func PutKeyringCode(identity, code string) error {
	return keyring.Set(keyringService, keyringCodePrefix+identity, strings.TrimSpace(code))
}

// Code implements instagram.CodeSource. The entry is removed once read.
func (KeyringCodeSource) Code(ctx context.Context, identity string) (string, error) {
	code, err := keyring.Get(keyringService, keyringCodePrefix+identity)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read code from keyring: %w", err)
	}
	_ = keyring.Delete(keyringService, keyringCodePrefix+identity)
	return code, nil
}

// EnvCodeSource reads IGFEED_VERIFICATION_CODE, whatever the identity. A value is handed out once;
// the variable has to change before it yields again.
type EnvCodeSource struct {
	mu   sync.Mutex
	used string
}

// NewEnvCodeSource creates an env source with nothing consumed yet
func NewEnvCodeSource() *EnvCodeSource {
	return &EnvCodeSource{}
}

func (e *EnvCodeSource) Code(ctx context.Context, identity string) (string, error) {
	code := strings.TrimSpace(os.Getenv(VerificationCodeEnv))

	e.mu.Lock()
	defer e.mu.Unlock()
	if code == "" || code == e.used {
		return "", nil
	}
	e.used = code
	return code, nil
}

// PromptCodeSource asks for the code on a terminal. Off a terminal it never yields a code.
type PromptCodeSource struct {
	in          io.Reader
	out         io.Writer
	interactive bool

	start sync.Once
	lines chan promptLine
}

type promptLine struct {
	text string
	err  error
}

// NewPromptCodeSource prompts on stderr and reads stdin when stdin is a terminal
func NewPromptCodeSource() *PromptCodeSource {
	return &PromptCodeSource{
		in:          os.Stdin,
		out:         os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		lines:       make(chan promptLine),
	}
}

// NewPromptCodeSourceFrom prompts on out and reads in unconditionally
func NewPromptCodeSourceFrom(in io.Reader, out io.Writer) *PromptCodeSource {
	return &PromptCodeSource{in: in, out: out, interactive: true, lines: make(chan promptLine)}
}

// readLines feeds p.lines until the input fails. A line nobody waited for is kept for the next Code.
func (p *PromptCodeSource) readLines() {
	defer close(p.lines)
	r := bufio.NewReader(p.in)
	for {
		line, err := r.ReadString('\n')
		p.lines <- promptLine{text: line, err: err}
		if err != nil {
			return
		}
	}
}

// Code implements instagram.CodeSource. Anything but six digits is rejected and yields "" so the
// poller asks again. Waiting for input ends with ctx.
func (p *PromptCodeSource) Code(ctx context.Context, identity string) (string, error) {
	if !p.interactive {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.start.Do(func() { go p.readLines() })

	fmt.Fprintf(p.out, "Enter the 6-digit verification code for %s: ", identity)

	var line promptLine
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			p.interactive = false
			return "", nil
		}
		line = l
	}

	if line.err != nil && line.text == "" {
		if errors.Is(line.err, io.EOF) {
			p.interactive = false
			return "", nil
		}
		return "", line.err
	}

	code := strings.TrimSpace(line.text)
	if !IsValidCode(code) {
		fmt.Fprintln(p.out, "The code must be exactly 6 digits.")
		return "", nil
	}
	return code, nil
}

// IsValidCode reports whether code has the six-digit shape Instagram sends
func IsValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ChainCodeSource asks each source in order and returns the first code found
type ChainCodeSource struct {
	sources []instagram.CodeSource
}

// NewChainCodeSource chains the non-nil sources
func NewChainCodeSource(sources ...instagram.CodeSource) *ChainCodeSource {
	return &ChainCodeSource{sources: lo.Filter(sources, func(s instagram.CodeSource, _ int) bool {
		return s != nil
	})}
}

// Len returns the number of chained sources
func (c *ChainCodeSource) Len() int {
	return len(c.sources)
}

// Code implements instagram.CodeSource. Errors are returned only when no source produced a code.
func (c *ChainCodeSource) Code(ctx context.Context, identity string) (string, error) {
	var errs []error
	for _, src := range c.sources {
		code, err := src.Code(ctx, identity)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if code = strings.TrimSpace(code); code != "" {
			return code, nil
		}
	}
	return "", errors.Join(errs...)
}

// CodeSourceFromConfig builds the chain named by cfg.CodeSources
func CodeSourceFromConfig(fs afero.Fs, cfg config.ChallengeConfig, log logger.Logger) (*ChainCodeSource, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	var sources []instagram.CodeSource
	for _, name := range lo.Uniq(cfg.CodeSources) {
		switch strings.TrimSpace(name) {
		case "cache":
			sources = append(sources, NewCacheCodeStore(fs, cfg.CodeStore, cfg.CodeLifetime))
		case "keyring":
			sources = append(sources, KeyringCodeSource{})
		case "env":
			sources = append(sources, NewEnvCodeSource())
		case "prompt":
			sources = append(sources, NewPromptCodeSource())
		default:
			return nil, fmt.Errorf("unknown code source: %q", name)
		}
	}

	log.DebugWithFields("verification code sources configured", map[string]interface{}{
		"sources": cfg.CodeSources,
	})
	return NewChainCodeSource(sources...), nil
}
