package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/gridexchange/edi-gateway/adapter"
	"github.com/gridexchange/edi-gateway/broker"
	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/incoming/validation"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/masterdata"
	"github.com/gridexchange/edi-gateway/outgoing"
	"github.com/gridexchange/edi-gateway/receiver"
	"github.com/gridexchange/edi-gateway/registry"
	"github.com/gridexchange/edi-gateway/s3"
	"github.com/gridexchange/edi-gateway/schema"
	"github.com/gridexchange/edi-gateway/version"
)

const metricsNamespace = "edi_gateway"

// shutdownTimeout bounds the time given to in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

func NewCmdServer(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithField("v", version.VERSION).Info("Starting server...")
			return doServer(logger, config)
		},
	}
}

func doServer(logger logrus.FieldLogger, config *Config) error {
	s, err := newServer(logger, config)
	if err != nil {
		return err
	}
	defer s.close()

	var g run.Group
	{
		g.Add(func() error {
			s.adapter.Run()
			return nil
		}, func(error) {
			s.adapter.Stop()
		})
	}
	{
		ln, err := net.Listen("tcp", config.Gateway.HTTPAddr)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("Market API listening")

		mux := http.NewServeMux()
		mux.Handle("/incoming/", s.handler)
		srv := &http.Server{Handler: mux}

		g.Add(func() error {
			return srv.Serve(ln)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(ctx)
		})
	}
	{
		ln, err := net.Listen("tcp", config.Gateway.MetricsAddr)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

		g.Add(func() error {
			mux := http.NewServeMux()

			// Health check.
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "OK")
			})

			// Prometheus metrics.
			mux.Handle("/metrics", promhttp.Handler())

			// Profiling data.
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			mux.Handle("/debug/pprof/block", pprof.Handler("block"))
			mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
			mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
			mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))

			return http.Serve(ln, mux)
		}, func(error) {
			ln.Close()
		})
	}
	{
		cancel := make(chan struct{})

		g.Add(func() error {
			err := interrupt(cancel, s.owners)
			logger.Warn("Shutting down...")
			return err
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

// server holds the components run by the server command.
type server struct {
	handler *receiver.Handler
	adapter *adapter.Adapter
	owners  *masterdata.GridAreaOwners
	closers []func() error
}

func (s *server) close() {
	if s.owners != nil {
		s.owners.Stop()
	}
	for _, c := range s.closers {
		c()
	}
}

func newServer(logger logrus.FieldLogger, config *Config) (*server, error) {
	if config.Gateway.JWTKey == "" {
		return nil, errors.New("gateway.jwt_key is required by the server")
	}
	gatewayID := market.ActorNumber(config.Gateway.ActorNumber)
	s := &server{}
	ready := false
	defer func() {
		if !ready {
			s.close()
		}
	}()

	var dynamodbClient *dynamodb.DynamoDB
	{
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		dynamodbClient = dynamodb.New(sess)
	}

	var snsClient *sns.SNS
	{
		sess, err := awsSession(logger, config.AWS.SNSProfile, config.AWS.SNSEndpoint)
		if err != nil {
			return nil, err
		}
		snsClient = sns.New(sess)
	}

	var reg registry.Registry
	{
		logger := logger.WithField("component", "registry")
		switch config.Gateway.Registry {
		case "postgres":
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			pg, err := registry.OpenPostgres(ctx, config.Gateway.PostgresDSN)
			if err != nil {
				return nil, err
			}
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
			s.closers = append(s.closers, pg.Close)
			reg = pg
		case "memory":
			logger.Warn("Using the in-memory registry, duplicates are only detected until the process exits")
			reg = registry.NewMemory()
		default:
			reg = registry.NewDynamoDB(logger, dynamodbClient, config.Gateway.RegistryTable)
		}
	}

	var dispatcher broker.Dispatcher
	{
		switch config.Gateway.Dispatcher {
		case "nats":
			conn, err := broker.ConnectNATS(config.Gateway.NATSURL, "edi-gateway")
			if err != nil {
				return nil, err
			}
			s.closers = append(s.closers, func() error { conn.Close(); return nil })
			dispatcher = broker.NewNATSDispatcher(conn, config.Gateway.NATSSubjectPrefix)
		default:
			dispatcher = broker.NewSNSDispatcher(logger.WithField("component", "dispatcher"), snsClient, config.Gateway.QueueSendCommandsAddr)
		}
	}

	var delegations masterdata.DelegationReader = masterdata.NewMemoryDelegations()
	if config.Gateway.DelegationsTable != "" {
		delegations = masterdata.NewDynamoDBDelegations(dynamodbClient, config.Gateway.DelegationsTable)
	}

	{
		var err error
		logger := logger.WithField("component", "grid-area-owners")
		s.owners, err = masterdata.NewGridAreaOwners(logger, dynamodbClient, config.Gateway.GridAreaOwnersTable)
		if err != nil {
			return nil, err
		}
	}

	{
		logger := logger.WithField("component", "receiver")
		metrics := receiver.NewMetrics(metricsNamespace)
		metrics.MustRegister(prometheus.DefaultRegisterer)
		provider := schema.NewProvider()
		r := receiver.New(logger,
			incoming.NewParsers(provider),
			validation.New(logger, gatewayID, reg, delegations),
			reg, dispatcher, metrics)
		s.handler = receiver.NewHandler(logger, r, []byte(config.Gateway.JWTKey))
	}

	var brClient *broker.Broker
	{
		incomingEvents := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "calculation_events_total",
			Help:      "The total number of calculation events received.",
		})
		prometheus.MustRegister(incomingEvents)

		sess, err := awsSession(logger, config.AWS.SQSProfile, config.AWS.SQSEndpoint)
		if err != nil {
			return nil, err
		}
		brClient = broker.New(
			logger.WithField("component", "broker"),
			sqs.New(sess), config.Gateway.QueueRecvEventsAddr,
			snsClient, config.Gateway.QueueSendInvalidAddr, config.Gateway.QueueSendErrorAddr,
			dynamodbClient, config.Gateway.ProcessedEventsTable,
			incomingEvents)
	}

	var store s3.DocumentStore
	if config.Gateway.DocumentBucket != "" {
		sess, err := awsSession(logger, config.AWS.S3Profile, config.AWS.S3Endpoint)
		if err != nil {
			return nil, err
		}
		store = s3.New(sess, config.Gateway.DocumentBucket)
	}

	var notifier broker.Dispatcher
	if config.Gateway.QueueSendDocumentsAddr != "" {
		notifier = broker.NewSNSDispatcher(logger.WithField("component", "notifier"), snsClient, config.Gateway.QueueSendDocumentsAddr)
	}

	{
		byReceiver, err := config.formats()
		if err != nil {
			return nil, err
		}
		format, _ := market.ParseDocumentFormat(config.Gateway.OutgoingFormat)
		metrics := adapter.NewMetrics(metricsNamespace)
		metrics.MustRegister(prometheus.DefaultRegisterer)
		s.adapter = adapter.New(
			logger.WithField("component", "adapter"),
			brClient,
			outgoing.NewMapper(gatewayID, s.owners),
			adapter.Formats{Default: format, ByReceiver: byReceiver},
			store, notifier, metrics)
	}

	ready = true
	return s, nil
}

type logrusProxy struct {
	logger logrus.FieldLogger
}

func (l logrusProxy) Log(args ...interface{}) {
	l.logger.WithField("client", "aws").Debug(args...)
}

// awsSession returns a session using NewSessionWithOptions meaning that it
// relies on the SDK defaults but also the user config files and environment.
//
// AWS_S3_FORCE_PATH_STYLE is a made-up environment string that the SDK does
// not look up. Localstack needs it.
func awsSession(logger logrus.FieldLogger, profile, endpoint string) (*session.Session, error) {
	options := session.Options{}
	if profile != "" {
		options.Profile = profile
	}
	if endpoint != "" {
		options.Config.WithEndpoint(endpoint)
	}
	if res, ok := os.LookupEnv("AWS_S3_FORCE_PATH_STYLE"); ok {
		options.Config.WithS3ForcePathStyle(cast.ToBool(res))
	}
	if logrus.GetLevel() == logrus.DebugLevel {
		options.Config.WithCredentialsChainVerboseErrors(true)
	}
	options.Config.WithLogger(logrusProxy{logger: logger})
	return session.NewSessionWithOptions(options)
}
