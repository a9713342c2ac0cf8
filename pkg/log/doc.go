// Package log is the logging surface of sensorsync.
//
// Components take a Logger and attach typed fields; the zerolog adapter
// renders them, and embedding programs may supply their own implementation.
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("tuple emitted", log.Stamp("reference", ref), log.Duration("spread", spread))
package log
