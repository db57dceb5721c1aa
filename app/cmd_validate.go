package app

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/go-logfmt/logfmt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/s3"
	"github.com/gridexchange/edi-gateway/schema"
)

// errInvalidDocument is returned when a document has validation errors.
var errInvalidDocument = errors.New("document is invalid")

type validateOptions struct {
	file         string
	format       string
	documentType string
}

func NewCmdValidate(out io.Writer, fs afero.Fs, config *Config) *cobra.Command {
	opts := validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate incoming market documents",
		Long: `Parse a document the way the market API does and print every
validation error found, one logfmt record per error. The file can be a
local path or a s3:// URI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var storage s3.DocumentStore
			if s3.IsURI(opts.file) {
				sess, err := awsSession(logrus.WithField("cmd", "validate"), config.AWS.S3Profile, config.AWS.S3Endpoint)
				if err != nil {
					return err
				}
				storage = s3.New(sess, "")
			}
			return doValidate(context.Background(), out, fs, storage, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "File")
	cmd.Flags().StringVar(&opts.format, "format", "", "Document format: json, xml or ebix (guessed from the file name when empty)")
	cmd.Flags().StringVarP(&opts.documentType, "document", "d", market.IncomingDocumentTypeRequestAggregatedMeasureData.String(), "Document type")

	return cmd
}

func doValidate(ctx context.Context, out io.Writer, fs afero.Fs, storage s3.DocumentStore, opts validateOptions) error {
	if opts.file == "" {
		return errors.New("parameter empty")
	}
	format, err := documentFormat(opts)
	if err != nil {
		return err
	}
	documentType, ok := market.ParseIncomingDocumentType(opts.documentType)
	if !ok {
		return errors.Errorf("document type %q is not supported", opts.documentType)
	}

	data, err := readDocument(ctx, fs, storage, opts.file)
	if err != nil {
		return errors.Wrap(err, "cannot read file")
	}

	parsers := incoming.NewParsers(schema.NewProvider())
	res, err := parsers.Parse(ctx, bytes.NewReader(data), format, documentType)
	if err != nil {
		return err
	}

	enc := logfmt.NewEncoder(out)
	for _, e := range res.Errors {
		if err := enc.EncodeKeyvals(
			"file", opts.file,
			"kind", e.Kind,
			"code", e.Code,
			"target", e.Target,
			"message", e.Message,
		); err != nil {
			return err
		}
		if err := enc.EndRecord(); err != nil {
			return err
		}
	}

	keyvals := []interface{}{"file", opts.file, "format", format, "document", documentType, "valid", res.Success()}
	if res.Message != nil {
		keyvals = append(keyvals,
			"messageID", res.Message.Header.MessageID,
			"sender", res.Message.Header.SenderID,
			"series", len(res.Message.Series))
	}
	if err := enc.EncodeKeyvals(keyvals...); err != nil {
		return err
	}
	if err := enc.EndRecord(); err != nil {
		return err
	}

	if !res.Success() {
		return errInvalidDocument
	}
	return nil
}

func readDocument(ctx context.Context, fs afero.Fs, storage s3.DocumentStore, name string) ([]byte, error) {
	if !s3.IsURI(name) {
		return afero.ReadFile(fs, name)
	}
	if storage == nil {
		return nil, errors.New("s3 is not configured")
	}
	buf := aws.NewWriteAtBuffer([]byte{})
	if _, err := storage.Download(ctx, buf, name); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// documentFormat returns the format given in opts or guesses it from the
// file name: "*.json", "*.ebix.xml" or "*.xml".
func documentFormat(opts validateOptions) (market.DocumentFormat, error) {
	if opts.format != "" {
		format, ok := market.ParseDocumentFormat(opts.format)
		if !ok {
			return 0, errors.Errorf("format %q is not supported", opts.format)
		}
		return format, nil
	}
	name := strings.ToLower(opts.file)
	switch {
	case strings.HasSuffix(name, ".ebix.xml"):
		return market.DocumentFormatEbix, nil
	case filepath.Ext(name) == ".xml":
		return market.DocumentFormatXML, nil
	case filepath.Ext(name) == ".json":
		return market.DocumentFormatJSON, nil
	}
	return 0, errors.Errorf("cannot guess the format of %s, use --format", opts.file)
}
