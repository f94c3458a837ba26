package framequeue_test

import (
	"testing"

	"github.com/emulator000/amqpcore/framequeue"
	"github.com/emulator000/amqpcore/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestFrameQueueSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "framequeue scheduler suite")
}

var _ = Describe("Queue.Pop scheduler atomicity", func() {
	var q *framequeue.Queue

	BeforeEach(func() {
		q = framequeue.New()
	})

	Context("with several interleaved basic.publish runs and control traffic", func() {
		It("never interleaves a non-body, non-header frame inside a publish run", func() {
			// Ten publish runs plus a queue.declare pushed for channel 3
			// (the helper frames themselves carry no channel id),
			// mirroring seed scenario 4 in spec section 8.
			for i := 0; i < 10; i++ {
				q.PushLowPrio(method("basic.publish"), nil)
				q.PushLowPrio(header(5), nil)
				q.PushLowPrio(body("hello"), nil)
			}
			q.Push(3, method("queue.declare"), nil, nil)

			var drained []wire.Frame
			for {
				of, ok := q.Pop(true)
				if !ok {
					break
				}
				drained = append(drained, of.Frame)
			}

			inPublishRun := false
			for i, f := range drained {
				switch {
				case f.Type == wire.FrameMethod && f.Method.Name() == "basic.publish":
					Expect(inPublishRun).To(BeFalse(), "a new publish run must not start mid-run, frame %d", i)
					inPublishRun = true
				case f.IsHeader():
					Expect(inPublishRun).To(BeTrue(), "a header frame must follow its basic.publish directly, frame %d", i)
				case f.IsBody():
					Expect(inPublishRun).To(BeTrue(), "a body frame must belong to an in-progress publish run, frame %d", i)
					inPublishRun = false
				default:
					Expect(inPublishRun).To(BeFalse(), "control traffic must not interleave a publish run, frame %d", i)
				}
			}
		})
	})

	Context("when flow is disabled before a publish run starts", func() {
		It("holds the run back while control frames pass, then emits it once flow resumes", func() {
			q.PushLowPrio(method("basic.publish"), nil)
			q.PushLowPrio(header(0), nil)
			q.Push(1, method("channel.flow-ok"), nil, nil)

			of, ok := q.Pop(false)
			Expect(ok).To(BeTrue())
			Expect(of.Frame.Method.Name()).To(Equal("channel.flow-ok"))

			_, ok = q.Pop(false)
			Expect(ok).To(BeFalse())

			of, ok = q.Pop(true)
			Expect(ok).To(BeTrue())
			Expect(of.Frame.Method.Name()).To(Equal("basic.publish"))

			of, ok = q.Pop(true)
			Expect(ok).To(BeTrue())
			Expect(of.Frame.IsHeader()).To(BeTrue())
		})
	})
})
