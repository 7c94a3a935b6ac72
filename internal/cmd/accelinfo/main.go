// accelinfo is a small diagnostic tool: it brings up the execution-context
// core on the host-simulated runtime, enumerates devices, warms the stream
// pools, and demonstrates round-robin hand-out and event-driven cross-queue
// ordering.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/bigrv/pytorch/accel"
	"github.com/bigrv/pytorch/accel/hostrt"
)

var (
	flagDevices = flag.Int("devices", 2, "number of simulated devices")
	flagStreams = flag.Int("streams", 8, "pooled streams to request per device")
)

func main() {
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	sys := must.M1(accel.NewSystem(hostrt.New(*flagDevices)))
	fmt.Printf("%d device(s), pool size %d per device\n", sys.DeviceCount(), accel.StreamsPerPool)

	ctx := sys.NewContext()
	for d := 0; d < sys.DeviceCount(); d++ {
		device := accel.Device(d)
		def := must.M1(sys.DefaultStream(device))
		fmt.Printf("%s:\n\tdefault %s (handle=%d)\n", device, def, def.Handle())
		for i := 0; i < *flagStreams; i++ {
			s := must.M1(sys.StreamFromPool(device))
			fmt.Printf("\tpooled  %s (handle=%d)\n", s, s.Handle())
		}
	}

	if sys.DeviceCount() < 2 {
		return
	}

	// Cross-device ordering demo: device 1 waits for a recording on device 0.
	producer := must.M1(sys.StreamFromPool(0))
	consumer := must.M1(sys.StreamFromPool(1))
	event := sys.NewEvent()

	must.M(producer.Submit(func() {
		time.Sleep(50 * time.Millisecond)
		fmt.Println("producer: recorded point reached")
	}))
	must.M(event.Record(producer))
	must.M(consumer.SynchronizeWith(event))
	must.M(consumer.Submit(func() {
		fmt.Println("consumer: running after the recorded point")
	}))

	must.M(accel.WithStream(ctx, consumer, func() error {
		cur := must.M1(ctx.CurrentStream())
		fmt.Printf("inside guard: current device %s, current stream %s\n", ctx.CurrentDevice(), cur)
		return nil
	}))
	fmt.Printf("after guard: current device %s\n", ctx.CurrentDevice())

	must.M(consumer.Synchronize())
	happened := must.M1(event.Happened())
	fmt.Printf("event happened: %v\n", happened)
}
