// Package useradd implements the command that provisions local (password)
// accounts. OAuth accounts are created on first login and never go
// through here.
package useradd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/flagx"
)

type Options struct {
	Username      string
	Email         string
	Admin         bool
	PasswordStdin bool
}

// ParseOptions reads the command's own flags from args, ignoring the
// server configuration flags that share the same command line.
func ParseOptions(args []string) (Options, error) {
	var o Options

	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.Username, "u", "", "Username of the new local account")
	fs.StringVar(&o.Email, "email", "", "Email address")
	fs.BoolVar(&o.Admin, "admin", false, "Grant the admin role")
	fs.BoolVar(&o.PasswordStdin, "password-stdin", false, "Read the password from standard input")

	filtered := flagx.FilterArgs(args, []string{"-u", "-email"})
	filtered = append(filtered, flagx.FilterBoolArgs(args, []string{"-admin", "-password-stdin"})...)
	if err := fs.Parse(filtered); err != nil {
		return o, err
	}

	o.Username = strings.TrimSpace(o.Username)
	if o.Username == "" {
		return o, errors.New("-u username is required")
	}
	return o, nil
}

// Registrar creates local accounts.
type Registrar interface {
	RegisterLocal(ctx context.Context, username, password, email string, isAdmin bool) error
}

// Run obtains the password and registers the account described by o.
func Run(ctx context.Context, r Registrar, o Options, stdin io.Reader, w io.Writer) error {
	password, err := obtainPassword(o, stdin, w)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if len(password) == 0 {
		return errors.New("password must not be empty")
	}

	err = r.RegisterLocal(ctx, o.Username, string(password), o.Email, o.Admin)
	if errors.Is(err, common.ErrorAlreadyExists) {
		return fmt.Errorf("user %q already exists", o.Username)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Created local user %q (admin=%t)\n", o.Username, o.Admin)
	return nil
}

func obtainPassword(o Options, stdin io.Reader, w io.Writer) ([]byte, error) {
	if o.PasswordStdin {
		return ReadPasswordLine(stdin)
	}

	first, err := GetPassword(w, "Enter password: ")
	if err != nil {
		return nil, err
	}
	second, err := GetPassword(w, "Repeat password: ")
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}
