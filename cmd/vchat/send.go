package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/urfave/cli/v2"
	"github.com/vdavid/vchat/internal/codec"
	"github.com/vdavid/vchat/internal/models"
)

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "Send a message",
	ArgsUsage: "BODY",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "to",
			Usage:    "Recipients, comma separated",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "cc",
			Usage: "Cc recipients, comma separated",
		},
		&cli.StringFlag{
			Name:  "subject",
			Usage: "Subject line",
		},
		&cli.StringSliceFlag{
			Name:  "attach",
			Usage: "File to attach; repeatable",
		},
	},
	Action: cmdSend,
}

func cmdSend(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one BODY argument")
	}
	attachments, err := readAttachments(ctx.StringSlice("attach"))
	if err != nil {
		return err
	}

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	echo, err := app.mailbox.Send(ctx.Context, models.OutgoingMessage{
		To:          codec.ParseAddressList(ctx.String("to")),
		Cc:          codec.ParseAddressList(ctx.String("cc")),
		Subject:     ctx.String("subject"),
		Body:        ctx.Args().First(),
		Attachments: attachments,
	})
	if err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	_, _ = fmt.Fprintf(ctx.App.Writer, "Sent as %s\n", echo.LocalID)
	return nil
}

func readAttachments(paths []string) ([]models.AttachmentDraft, error) {
	drafts := make([]models.AttachmentDraft, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		drafts = append(drafts, models.AttachmentDraft{
			Filename: filepath.Base(path),
			Data:     data,
			MimeType: mimetype.Detect(data).String(),
		})
	}
	return drafts, nil
}
