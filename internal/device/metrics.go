package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var kernelLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bowyer_device_kernel_launches_total",
	Help: "Total number of kernels enqueued, by kernel name",
}, []string{"kernel"})
