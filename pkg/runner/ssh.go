package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/singleflight"
)

// SSHConfig describes the remote host that runs the solver.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyFile        string
	Password       string
	KnownHostsFile string

	// WorkDir receives staged instances. It defaults to /tmp/spysmac.
	WorkDir string

	// StageInstances uploads instances before running. Otherwise the
	// instance paths are assumed to exist on the remote host.
	StageInstances bool

	ConnectTimeout time.Duration
}

// DefaultRemoteWorkDir is the staging directory when none is configured.
const DefaultRemoteWorkDir = "/tmp/spysmac"

func (c *SSHConfig) address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c *SSHConfig) workDir() string {
	if c.WorkDir == "" {
		return DefaultRemoteWorkDir
	}
	return c.WorkDir
}

// clientConfig builds the x/crypto/ssh client configuration. Without a
// known_hosts file any host key is accepted.
func (c *SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if c.KeyFile != "" {
		keyBytes, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if c.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.Password))
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))
	}

	if len(authMethods) == 0 {
		return nil, errors.New("no authentication method: set a key file or password")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsFile != "" {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// SSHExecutor runs solvers on a remote host over one shared SSH connection.
// Each run gets its own session. Runtime is wall-clock time, as CPU time of
// the remote process is not observable through a session.
type SSHExecutor struct {
	config *SSHConfig
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
	staged map[string]string
	stage  singleflight.Group
}

// NewSSHExecutor creates an executor. Connect must be called before use.
func NewSSHExecutor(config *SSHConfig, logger zerolog.Logger) *SSHExecutor {
	return &SSHExecutor{
		config: config,
		logger: logger.With().Str("component", "ssh-executor").Str("host", config.Host).Logger(),
		staged: make(map[string]string),
	}
}

// Connect dials the remote host.
func (e *SSHExecutor) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return nil
	}

	clientConfig, err := e.config.clientConfig()
	if err != nil {
		return &ExecError{Op: "connect", Err: err, IsAuthError: true}
	}

	addr := e.config.address()
	e.logger.Info().Str("address", addr).Str("user", e.config.User).Msg("Connecting to remote host")

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultChan := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, clientConfig)
		resultChan <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		return &ExecError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case res := <-resultChan:
		if res.err != nil {
			return &ExecError{
				Op:          "connect",
				Err:         fmt.Errorf("failed to connect to %s: %w", addr, res.err),
				IsTemporary: !isAuthError(res.err),
				IsAuthError: isAuthError(res.err),
			}
		}
		e.client = res.client
	}

	e.logger.Info().Str("address", addr).Msg("Connected")
	return nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Close drops the connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func (e *SSHExecutor) getClient() (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil, &ExecError{Op: "connect", Err: errors.New("not connected"), IsTemporary: true}
	}
	return e.client, nil
}

// Execute implements Executor.
func (e *SSHExecutor) Execute(ctx context.Context, argv []string, cutoff time.Duration) (Outcome, error) {
	if len(argv) == 0 {
		return Outcome{}, &ExecError{Op: "exec", Err: errors.New("empty command")}
	}

	client, err := e.getClient()
	if err != nil {
		return Outcome{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		return Outcome{}, &ExecError{
			Op:          "exec",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmd := shellJoin(argv)
	startTime := time.Now()

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	timer := time.NewTimer(cutoff)
	defer timer.Stop()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return Outcome{}, ctx.Err()
	case <-timer.C:
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		e.logger.Debug().Str("command", cmd).Msg("Remote solver run reached cutoff")
		return timeoutOutcome(cutoff), nil
	case runErr = <-doneChan:
	}

	wall := time.Since(startTime)

	exitCode := 0
	if runErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(runErr, &exitErr) {
			return Outcome{}, &ExecError{Op: "exec", Err: runErr, IsTemporary: true}
		}
		exitCode = exitErr.ExitStatus()
	}

	out := finish(stdout.String(), wall.Seconds(), exitCode, cutoff)
	e.logger.Debug().
		Str("command", cmd).
		Int("exit_code", exitCode).
		Str("status", string(out.Status)).
		Dur("duration", wall).
		Msg("Remote solver run finished")
	return out, nil
}

// Stage uploads a local instance into the remote work directory once and
// returns its remote path. Without StageInstances the path is returned
// unchanged.
func (e *SSHExecutor) Stage(ctx context.Context, localPath string) (string, error) {
	if !e.config.StageInstances {
		return localPath, nil
	}

	e.mu.Lock()
	remote, ok := e.staged[localPath]
	e.mu.Unlock()
	if ok {
		return remote, nil
	}

	v, err, _ := e.stage.Do(localPath, func() (any, error) {
		client, err := e.getClient()
		if err != nil {
			return "", err
		}

		remote := path.Join(e.config.workDir(), stagedName(localPath))
		if err := uploadFile(ctx, client, localPath, remote); err != nil {
			return "", err
		}

		e.mu.Lock()
		e.staged[localPath] = remote
		e.mu.Unlock()

		e.logger.Debug().Str("local", localPath).Str("remote", remote).Msg("Instance staged")
		return remote, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// stagedName flattens a local path into a unique remote file name.
func stagedName(localPath string) string {
	clean := filepath.ToSlash(filepath.Clean(localPath))
	clean = strings.TrimPrefix(clean, "/")
	return strings.ReplaceAll(clean, "/", "__")
}

func uploadFile(ctx context.Context, client *ssh.Client, localPath, remotePath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return &ExecError{Op: "stage", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer localFile.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &ExecError{Op: "stage", Err: fmt.Errorf("failed to create SFTP client: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return &ExecError{Op: "stage", Err: fmt.Errorf("failed to create remote directory: %w", err)}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &ExecError{Op: "stage", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}
	defer remoteFile.Close()

	if _, err := copyWithContext(ctx, remoteFile, localFile); err != nil {
		return &ExecError{Op: "stage", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}
	return nil
}

func copyWithContext(ctx context.Context, dst *sftp.File, src *os.File) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}

// shellJoin quotes argv for the remote shell.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
