package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/synx"
	"github.com/aretw0/synx/internal/presentation/table"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
)

// InspectOptions selects the directory rows to print.
type InspectOptions struct {
	From, To uint32
	Columns  string
	Color    bool
}

// Inspect prints the live entries of dir as a table. The rows are advisory:
// they come from the shared directory, not from any process's object store.
func Inspect(ctx context.Context, dir ports.Directory, opts InspectOptions, w io.Writer) error {
	cols, err := domain.ParseColumns(opts.Columns)
	if err != nil {
		return err
	}
	svc, err := synx.New(synx.WithDirectory(dir))
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	rows, err := svc.Query(ctx, synx.QueryOptions{
		From:             opts.From,
		To:               opts.To,
		Columns:          cols,
		IncludeDirectory: true,
	})
	if err != nil {
		return err
	}
	return table.Render(w, rows, cols, Profile(w, opts.Color))
}

// Recover runs the recovery sweep for d against dir on behalf of a domain
// that reset without a surviving process.
func Recover(ctx context.Context, dir ports.Directory, d domain.DomainID, w io.Writer) error {
	svc, err := synx.New(synx.WithDirectory(dir))
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	rep, err := svc.Recover(ctx, d)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "domain %d: %d directory entries signaled ssr\n", rep.Domain, rep.Directory)
	return err
}
