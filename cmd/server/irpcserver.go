package main

import (
	"github.com/marben/irpc"
	"go.uber.org/zap"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/logger"
)

// newIrpcServer serves img as a mandel.ImgProvider to irpc clients. The
// caller passes it listeners with Serve.
func newIrpcServer(img mandel.ImgProvider, log logger.Logger) *irpc.Server {
	s := irpc.NewServer(irpc.WithOnConnect(func(ep *irpc.Endpoint) {
		log.Info("irpc client connected", zap.String("remote", ep.RemoteAddr().String()))
	}))
	s.AddService(mandel.NewImgProviderIrpcService(img))
	return s
}
