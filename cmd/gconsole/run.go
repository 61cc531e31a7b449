package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"

	"github.com/keaganluttrell/gconsole/client"
	"github.com/keaganluttrell/gconsole/console"
	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// programArgs picks the program to run: the command line arguments, then
// the configured program line, then $SHELL.
func programArgs(cfg console.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if cfg.Program != "" {
		argv, err := shellwords.Parse(cfg.Program)
		if err != nil {
			return nil, errors.Wrapf(err, "parse program %q", cfg.Program)
		}
		if len(argv) == 0 {
			return nil, errors.Errorf("program %q is empty", cfg.Program)
		}
		return argv, nil
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return []string{sh}, nil
	}
	return []string{"/bin/sh"}, nil
}

// console endpoints opened by the bootstrap
type mount struct {
	root  uint32
	out   *client.File
	in    *client.File
	consR *client.File
	consW *client.File
}

func attach(ctx context.Context, c *client.Client) (*mount, error) {
	if _, err := c.Version(ctx, p9.IOHDRSZ+console.MaxData); err != nil {
		return nil, errors.Wrap(err, "version")
	}
	root, err := c.Attach(ctx, os.Getenv("USER"), "")
	if err != nil {
		return nil, errors.Wrap(err, "attach")
	}
	m := &mount{root: root}
	for _, f := range []struct {
		dst  **client.File
		name string
		mode uint8
	}{
		{&m.out, "out", p9.OREAD},
		{&m.in, "in", p9.OWRITE},
		{&m.consR, "cons", p9.OREAD},
		{&m.consW, "cons", p9.OWRITE},
	} {
		if *f.dst, err = c.OpenFile(ctx, root, f.name, f.mode); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// runConsole serves a console session on an in-process pipe, joins stdin
// and stdout to its streams and runs argv on cons. It returns when the
// program exits.
func runConsole(ctx context.Context, cfg console.Config, argv []string, stdin *os.File, stdout io.Writer) error {
	restore, raw, err := makeRaw(stdin, cfg.Blind)
	if err != nil {
		return err
	}
	defer restore()

	screen := stdout
	if raw {
		screen = crlfWriter{stdout}
		log.SetOutput(crlfWriter{os.Stderr})
		defer log.SetOutput(os.Stderr)
	}

	srv, cli := net.Pipe()
	session := console.NewSession(console.NewConnTransport(srv), cfg)
	c := client.New(console.NewConnTransport(cli))
	defer c.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Serve(ctx) })

	m, err := attach(ctx, c)
	if err != nil {
		c.Close()
		g.Wait()
		return err
	}

	g.Go(func() error { return quiet(client.Pump(ctx, "stdout", screen, m.out)) })
	// Reads from stdin cannot be interrupted, so this pump is left behind
	// when the program exits.
	go func() {
		if err := quiet(client.Pump(ctx, "stdin", m.in, stdin)); err != nil {
			log.Warn(err)
		}
	}()
	g.Go(func() error {
		err := runProgram(ctx, argv, m.consR, m.consW)
		// Clunking the attach fid unmounts the console and ends Serve.
		if cerr := c.Clunk(context.Background(), m.root); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "unmount")
		}
		return err
	})
	return g.Wait()
}

// quiet drops the errors a pump returns because the console went away.
func quiet(err error) error {
	if errors.Is(err, client.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runProgram runs argv with stdin fed from cons and stdout and stderr
// written to cons.
func runProgram(ctx context.Context, argv []string, cons io.Reader, screen io.Writer) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = screen
	cmd.Stderr = screen
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "stdin pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", argv[0])
	}
	log.Debugf("started %v pid %d", argv, cmd.Process.Pid)

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		client.Pump(pctx, "cons", stdin, cons)
		stdin.Close()
	}()

	if err := cmd.Wait(); err != nil {
		return errors.Wrapf(err, "%s", argv[0])
	}
	return nil
}
