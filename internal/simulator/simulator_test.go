package simulator_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/internal/simulator"
	"github.com/shelfsense/shelfd/pkg/mq/mock"
)

var _ = Describe("Simulator", func() {
	var mqClient *mock.MockClient

	BeforeEach(func() {
		mqClient = mock.NewMockClient()
	})

	Describe("NewSimulator", func() {
		It("should fabricate a device identity", func() {
			sim, err := simulator.NewSimulator(mqClient)
			Expect(err).NotTo(HaveOccurred())
			Expect(sim).NotTo(BeNil())
			Expect(sim.Device).NotTo(BeNil())
			Expect(sim.Device.DeviceID).NotTo(BeEmpty())
			Expect(sim.MQClient).To(Equal(mqClient))
		})

		It("should give every simulator a distinct device", func() {
			first, err := simulator.NewSimulator(mqClient)
			Expect(err).NotTo(HaveOccurred())
			second, err := simulator.NewSimulator(mqClient)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Device.DeviceID).NotTo(Equal(second.Device.DeviceID))
		})
	})

	Describe("PublishMovement", func() {
		It("should push one payload to the queue", func() {
			sim, err := simulator.NewSimulator(mqClient)
			Expect(err).NotTo(HaveOccurred())
			ctx := context.Background()

			Expect(sim.PublishMovement(ctx)).To(Succeed())
			Expect(mqClient.PushCalls).To(HaveLen(1))
			Expect(mqClient.PushCalls[0].Ctx).To(Equal(ctx))
		})

		It("should publish payloads the backend normalizer accepts", func() {
			sim, err := simulator.NewSimulator(mqClient)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 50; i++ {
				Expect(sim.PublishMovement(context.Background())).To(Succeed())
			}
			for _, call := range mqClient.PushCalls {
				movements, err := inventory.NormalizeMovementPayload(call.Data)
				Expect(err).NotTo(HaveOccurred())
				Expect(movements).NotTo(BeEmpty())
			}
		})

		It("should propagate a push failure", func() {
			mqClient.PushError = errors.New("broker unavailable")
			sim, err := simulator.NewSimulator(mqClient)
			Expect(err).NotTo(HaveOccurred())

			err = sim.PublishMovement(context.Background())
			Expect(err).To(MatchError(mqClient.PushError))
		})
	})
})
