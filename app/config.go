package app

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/gridexchange/edi-gateway/market"
)

const defaultConfig = `# EDI Gateway

################################## LOGGING ####################################

[logging]

#
# Logging verbosity level.
# Supported values: "DEBUG", "INFO", "WARN", "ERROR", "FATAL" or "PANIC".
#
level = "INFO"

################################## GATEWAY ####################################

[gateway]

#
# GLN of the gateway. Incoming documents must be addressed to it and outgoing
# documents are sent from it.
#
actor_number = "5790001330552"

#
# Listening addresses of the market API and of the metrics, health and
# profiling endpoints.
#
http_addr = ":8080"
metrics_addr = ":6060"

#
# HMAC key used to verify the bearer tokens of market actors.
#
jwt_key = ""

#
# Store of the message ids and transaction ids already received.
# Supported values: "dynamodb", "postgres" or "memory".
#
registry = "dynamodb"
registry_table = "edi_gateway_registry"
postgres_dsn = ""

#
# Master data tables (DynamoDB).
#
grid_area_owners_table = "edi_gateway_grid_area_owners"
delegations_table = "edi_gateway_delegations"

#
# Transport of the commands sent for every accepted transaction.
# Supported values: "sns" or "nats".
#
dispatcher = "sns"
queue_send_commands_addr = ""
nats_url = "nats://localhost:4222"
nats_subject_prefix = "edi.commands"

#
# AWS SQS queue URL, e.g. "https://queue.amazonaws.com/80398EXAMPLE/MyQueue".
#
# The gateway receives calculation events from this queue.
#
queue_recv_events_addr = ""

#
# Table used to skip calculation events delivered more than once (DynamoDB).
#
processed_events_table = "edi_gateway_processed_events"

#
# AWS SNS topic ARNs, e.g. "arn:aws:sns:us-east-2:444455556666:topic".
#
queue_send_invalid_addr = ""
queue_send_error_addr = ""
queue_send_documents_addr = ""

#
# S3 bucket where outgoing documents are stored.
#
document_bucket = ""

#
# Format of outgoing documents: "json", "xml" or "ebix". Receivers listed in
# [gateway.outgoing_formats] get their own format, e.g.
#
#   [gateway.outgoing_formats]
#   5790000000001 = "ebix"
#
outgoing_format = "xml"

################################## AWS ########################################

[aws]

s3_profile = ""
s3_endpoint = ""

dynamodb_profile = ""
dynamodb_endpoint = ""

sqs_profile = ""
sqs_endpoint = ""

sns_profile = ""
sns_endpoint = ""
`

type Config struct {
	v *viper.Viper

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Gateway struct {
		ActorNumber            string            `mapstructure:"actor_number"`
		HTTPAddr               string            `mapstructure:"http_addr"`
		MetricsAddr            string            `mapstructure:"metrics_addr"`
		JWTKey                 string            `mapstructure:"jwt_key"`
		Registry               string            `mapstructure:"registry"`
		RegistryTable          string            `mapstructure:"registry_table"`
		PostgresDSN            string            `mapstructure:"postgres_dsn"`
		GridAreaOwnersTable    string            `mapstructure:"grid_area_owners_table"`
		DelegationsTable       string            `mapstructure:"delegations_table"`
		Dispatcher             string            `mapstructure:"dispatcher"`
		QueueSendCommandsAddr  string            `mapstructure:"queue_send_commands_addr"`
		NATSURL                string            `mapstructure:"nats_url"`
		NATSSubjectPrefix      string            `mapstructure:"nats_subject_prefix"`
		QueueRecvEventsAddr    string            `mapstructure:"queue_recv_events_addr"`
		ProcessedEventsTable   string            `mapstructure:"processed_events_table"`
		QueueSendInvalidAddr   string            `mapstructure:"queue_send_invalid_addr"`
		QueueSendErrorAddr     string            `mapstructure:"queue_send_error_addr"`
		QueueSendDocumentsAddr string            `mapstructure:"queue_send_documents_addr"`
		DocumentBucket         string            `mapstructure:"document_bucket"`
		OutgoingFormat         string            `mapstructure:"outgoing_format"`
		OutgoingFormats        map[string]string `mapstructure:"outgoing_formats"`
	} `mapstructure:"gateway"`

	AWS struct {
		S3Profile        string `mapstructure:"s3_profile"`
		S3Endpoint       string `mapstructure:"s3_endpoint"`
		DynamoDBProfile  string `mapstructure:"dynamodb_profile"`
		DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
		SQSProfile       string `mapstructure:"sqs_profile"`
		SQSEndpoint      string `mapstructure:"sqs_endpoint"`
		SNSProfile       string `mapstructure:"sns_profile"`
		SNSEndpoint      string `mapstructure:"sns_endpoint"`
	} `mapstructure:"aws"`
}

func (c Config) Validate() error {
	if !market.ActorNumber(c.Gateway.ActorNumber).Valid() {
		return errors.Errorf("gateway.actor_number %q is not a GLN or EIC", c.Gateway.ActorNumber)
	}
	switch c.Gateway.Registry {
	case "dynamodb", "memory":
	case "postgres":
		if c.Gateway.PostgresDSN == "" {
			return errors.New("gateway.postgres_dsn is required by the postgres registry")
		}
	default:
		return errors.Errorf("gateway.registry %q is not supported", c.Gateway.Registry)
	}
	switch c.Gateway.Dispatcher {
	case "sns", "nats":
	default:
		return errors.Errorf("gateway.dispatcher %q is not supported", c.Gateway.Dispatcher)
	}
	if _, err := c.formats(); err != nil {
		return err
	}
	return nil
}

// formats returns the outgoing format of every configured receiver.
func (c Config) formats() (map[market.ActorNumber]market.DocumentFormat, error) {
	if _, ok := market.ParseDocumentFormat(c.Gateway.OutgoingFormat); !ok {
		return nil, errors.Errorf("gateway.outgoing_format %q is not supported", c.Gateway.OutgoingFormat)
	}
	formats := make(map[market.ActorNumber]market.DocumentFormat, len(c.Gateway.OutgoingFormats))
	for receiver, name := range c.Gateway.OutgoingFormats {
		format, ok := market.ParseDocumentFormat(name)
		if !ok {
			return nil, errors.Errorf("gateway.outgoing_formats: format %q of %s is not supported", name, receiver)
		}
		formats[market.ActorNumber(receiver)] = format
	}
	return formats, nil
}

// secretKeys are replaced by redacted when the configuration is rendered.
var secretKeys = []string{"gateway.jwt_key", "gateway.postgres_dsn"}

const redacted = "<redacted>"

func (c Config) String() string {
	return c.render(true)
}

// render writes the configuration as TOML. Non-empty secrets are replaced
// when redact is set.
func (c Config) render(redact bool) string {
	v := viper.New()
	if err := v.MergeConfigMap(c.v.AllSettings()); err != nil {
		return err.Error()
	}
	if redact {
		for _, key := range secretKeys {
			if v.GetString(key) != "" {
				v.Set(key, redacted)
			}
		}
	}

	tmpfile, err := ioutil.TempFile("", "config.*.toml")
	if err != nil {
		return err.Error()
	}
	defer os.Remove(tmpfile.Name())
	defer tmpfile.Close()
	err = v.WriteConfigAs(tmpfile.Name())
	if err != nil {
		return err.Error()
	}
	blob, err := ioutil.ReadAll(tmpfile)
	if err != nil {
		return err.Error()
	}
	return string(blob)
}

func loadConfig(c *Config) error {
	v := viper.New()

	v.SetEnvPrefix("EDI_GATEWAY")
	v.AutomaticEnv()

	v.SetConfigName("edi-gateway")
	v.SetConfigType("toml")
	v.AddConfigPath("$HOME/.config/")
	v.AddConfigPath("/etc/edi-gateway/")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read our default configuration.
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		panic(err) // Not in the user path.
	}

	// Include configuration file provided by the user.
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return errors.Wrap(err, "configuration unmarshaling failed")
	}

	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "config did not pass validation")
	}

	c.v = v

	return nil
}
