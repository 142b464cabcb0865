// Command ragctl manages organizations and documents and asks questions
// without going through the HTTP API.
//
// Usage:
//
//	ragctl org create "Acme Insurance"
//	ragctl ingest --org <id> handbook.pdf
//	ragctl ask --org <id> "What are the claim requirements?"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"orgrag/internal/app"
	"orgrag/internal/bootstrap"
	"orgrag/internal/config"
	"orgrag/internal/pkg/jwtutil"
)

type CLI struct {
	Config string `short:"c" help:"Path to the TOML config file (overrides CONFIG_FILE)." type:"path"`

	Ingest IngestCmd `cmd:"" help:"Ingest a document into an organization."`
	Ask    AskCmd    `cmd:"" help:"Answer a question from an organization's documents."`
	Delete DeleteCmd `cmd:"" help:"Delete a document and its chunks."`
	Docs   DocsCmd   `cmd:"" help:"List an organization's documents."`
	Org    OrgCmd    `cmd:"" help:"Manage organizations."`
	Token  TokenCmd  `cmd:"" help:"Issue an API token."`
	Worker WorkerCmd `cmd:"" help:"Consume the ingest queue until interrupted."`
}

func (c *CLI) loadConfig() (*config.Config, error) {
	if c.Config != "" {
		if err := os.Setenv("CONFIG_FILE", c.Config); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

func (c *CLI) open(ctx context.Context, startWorker bool) (*bootstrap.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, bootstrap.Options{Config: cfg, StartWorker: startWorker})
}

type IngestCmd struct {
	Org        string `required:"" help:"Organization id."`
	ID         string `name:"id" help:"Document id; generated when empty."`
	Name       string `help:"Display name; defaults to the file name."`
	Format     string `help:"Format override (pdf, docx, xlsx, csv, txt, md)."`
	UploadedBy string `name:"uploaded-by" help:"Recorded uploader." default:"ragctl"`
	Async      bool   `help:"Queue the document instead of processing it here."`
	File       string `arg:"" help:"File to ingest." type:"existingfile"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read file failed: %w", err)
	}
	name := c.Name
	if name == "" {
		name = filepath.Base(c.File)
	}
	format := c.Format
	if format == "" {
		format = c.File
	}
	input := app.IngestInput{
		OrganizationID: c.Org,
		DocumentID:     c.ID,
		Name:           name,
		Format:         format,
		Data:           data,
		UploadedBy:     c.UploadedBy,
	}

	var res *app.IngestResult
	if c.Async {
		res, err = a.RAG.EnqueueIngest(ctx, input)
	} else {
		res, err = a.RAG.Ingest(ctx, input)
	}
	if err != nil {
		return err
	}
	return printJSON(res)
}

type AskCmd struct {
	Org      string   `required:"" help:"Organization id."`
	Question []string `arg:"" help:"Question text."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.RAG.Answer(ctx, c.Org, strings.Join(c.Question, " "))
	if err != nil {
		return err
	}
	return printJSON(answer)
}

type DeleteCmd struct {
	Org      string `required:"" help:"Organization id."`
	Document string `arg:"" help:"Document id."`
}

func (c *DeleteCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.RAG.DeleteDocument(ctx, c.Org, c.Document)
	if err != nil {
		return err
	}
	return printJSON(res)
}

type DocsCmd struct {
	Org string `required:"" help:"Organization id."`
}

func (c *DocsCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.RAG.ListDocuments(ctx, c.Org)
	if err != nil {
		return err
	}
	return printJSON(docs)
}

type OrgCmd struct {
	Create     OrgCreateCmd     `cmd:"" help:"Create an organization."`
	List       OrgListCmd       `cmd:"" help:"List organizations."`
	Activate   OrgActivateCmd   `cmd:"" help:"Allow ingestion for an organization."`
	Deactivate OrgDeactivateCmd `cmd:"" help:"Block ingestion for an organization."`
}

type OrgCreateCmd struct {
	Description string `help:"Free-form description."`
	Name        string `arg:"" help:"Unique organization name."`
}

func (c *OrgCreateCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	org, err := a.Organizations.Create(ctx, app.CreateOrganizationInput{Name: c.Name, Description: c.Description})
	if err != nil {
		return err
	}
	return printJSON(org)
}

type OrgListCmd struct{}

func (c *OrgListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	orgs, err := a.Organizations.List(ctx)
	if err != nil {
		return err
	}
	return printJSON(orgs)
}

type OrgActivateCmd struct {
	ID string `arg:"" help:"Organization id."`
}

func (c *OrgActivateCmd) Run(cli *CLI) error {
	return setActive(cli, c.ID, true)
}

type OrgDeactivateCmd struct {
	ID string `arg:"" help:"Organization id."`
}

func (c *OrgDeactivateCmd) Run(cli *CLI) error {
	return setActive(cli, c.ID, false)
}

func setActive(cli *CLI, id string, active bool) error {
	ctx := context.Background()
	a, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	org, err := a.Organizations.SetActive(ctx, id, active)
	if err != nil {
		return err
	}
	return printJSON(org)
}

type TokenCmd struct {
	User string        `required:"" help:"User id placed in the token."`
	Org  string        `required:"" help:"Organization id placed in the token."`
	Role string        `help:"Role (super-admin, admin, user)." default:"user" enum:"super-admin,admin,user"`
	TTL  time.Duration `name:"ttl" help:"Token lifetime; defaults to auth.jwt_expire_minute."`
}

func (c *TokenCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
	}
	tok, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, c.User, c.Org, c.Role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

type WorkerCmd struct{}

func (c *WorkerCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := cli.open(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.IngestWorker == nil {
		return fmt.Errorf("rabbitmq is disabled in the config")
	}

	<-ctx.Done()
	a.Logger.Info("worker stopping")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ragctl"),
		kong.Description("Organization-scoped document answering from the command line."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
