package workitem

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/memory"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange   string
	routingKey string
	body       []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

type fixture struct {
	uow    ports.UnitOfWork
	rides  ports.RideRepository
	pub    *fakePublisher
	send   *SendMessageHandler
	update *UpdateRideHandler
}

func newFixture(t *testing.T, destinations map[string]string) *fixture {
	t.Helper()
	store := memory.NewStore()
	log := logger.New("test").WithOutput(io.Discard)
	f := &fixture{
		uow:   memory.NewUnitOfWork(store),
		rides: memory.NewRideRepo(store),
		pub:   &fakePublisher{},
	}
	f.send = NewSendMessageHandler(log, f.uow, f.rides, f.pub, destinations, DefaultPayloadBuilders(), "")
	f.update = NewUpdateRideHandler(log, f.rides)

	r, err := ride.NewRide("ride123", "A", "B", decimal.RequireFromString("25.10"), "p1")
	require.NoError(t, err)
	require.NoError(t, f.rides.Create(context.Background(), r))
	return f
}

var defaultDestinations = map[string]string{
	saga.DestinationAssignDriver:  "driver_commands",
	saga.DestinationHandlePayment: "payment_commands",
}

func sendItem(messageType, destination string) saga.WorkItem {
	key, _ := saga.NewCorrelationKey("ride123")
	return saga.WorkItem{
		Key:   key,
		State: saga.StateDriverAssigned,
		Name:  saga.WorkItemSendMessage,
		Params: map[string]any{
			saga.ParamMessageType: messageType,
			saga.ParamDestination: destination,
			saga.ParamRideID:      "ride123",
			saga.ParamTraceID:     "trace-1",
		},
	}
}

func TestSendMessagePublishesAfterCommit(t *testing.T) {
	f := newFixture(t, defaultDestinations)
	ctx := context.Background()

	err := f.uow.WithinTx(ctx, func(ctx context.Context) error {
		result, err := f.send.Execute(ctx, sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver))
		require.NoError(t, err)
		assert.Empty(t, result)
		assert.Empty(t, f.pub.sent, "nothing is published before commit")
		return nil
	})
	require.NoError(t, err)

	require.Len(t, f.pub.sent, 1)
	sent := f.pub.sent[0]
	assert.Equal(t, "driver_commands", sent.exchange)
	assert.Equal(t, "ride123", sent.routingKey)

	msg, err := contracts.Decode(sent.body)
	require.NoError(t, err)
	assert.Equal(t, contracts.KindAssignDriver, msg.Kind)
	assert.Equal(t, contracts.SenderDispatchService, msg.Sender)
	assert.Equal(t, "trace-1", msg.TraceID)
	assert.NotEmpty(t, msg.ID)

	cmd, ok := msg.Payload.(*contracts.AssignDriverCommand)
	require.True(t, ok)
	assert.Equal(t, "ride123", cmd.RideID)
	assert.Equal(t, "A", cmd.Pickup)
	assert.Equal(t, "B", cmd.Destination)
	assert.Equal(t, "p1", cmd.PassengerID)
	assert.True(t, decimal.RequireFromString("25.10").Equal(cmd.Price))
}

func TestSendMessageHandlePaymentUsesCurrentRide(t *testing.T) {
	f := newFixture(t, defaultDestinations)
	ctx := context.Background()

	r, err := f.rides.FindByRideID(ctx, "ride123")
	require.NoError(t, err)
	r.Price = decimal.RequireFromString("31.75")
	require.NoError(t, f.rides.Update(ctx, r))

	_, err = f.send.Execute(ctx, sendItem(contracts.TypeHandlePaymentCommand, saga.DestinationHandlePayment))
	require.NoError(t, err)

	require.Len(t, f.pub.sent, 1)
	assert.Equal(t, "payment_commands", f.pub.sent[0].exchange)
	msg, err := contracts.Decode(f.pub.sent[0].body)
	require.NoError(t, err)
	cmd, ok := msg.Payload.(*contracts.HandlePaymentCommand)
	require.True(t, ok)
	assert.Equal(t, "p1", cmd.PassengerID)
	assert.True(t, decimal.RequireFromString("31.75").Equal(cmd.Price))
}

func TestSendMessageRollbackDropsPublish(t *testing.T) {
	f := newFixture(t, defaultDestinations)

	boom := errors.New("later step failed")
	err := f.uow.WithinTx(context.Background(), func(ctx context.Context) error {
		_, err := f.send.Execute(ctx, sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.pub.sent)
}

func TestSendMessageFatalConfiguration(t *testing.T) {
	cases := []struct {
		name         string
		destinations map[string]string
		item         saga.WorkItem
		want         error
	}{
		{
			name:         "alias not configured",
			destinations: map[string]string{},
			item:         sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver),
			want:         ErrUnknownDestination,
		},
		{
			name:         "alias configured empty",
			destinations: map[string]string{saga.DestinationAssignDriver: ""},
			item:         sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver),
			want:         ErrUnknownDestination,
		},
		{
			name:         "no payload builder",
			destinations: defaultDestinations,
			item:         sendItem("RefundCommand", saga.DestinationHandlePayment),
			want:         ErrNoPayloadBuilder,
		},
		{
			name:         "no message type",
			destinations: defaultDestinations,
			item:         sendItem("", saga.DestinationHandlePayment),
			want:         ErrMissingParam,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.destinations)
			err := f.uow.WithinTx(context.Background(), func(ctx context.Context) error {
				_, err := f.send.Execute(ctx, tc.item)
				return err
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsFatal(err))
			assert.True(t, rabbitmq.IsPermanent(err))
			assert.Empty(t, f.pub.sent)
		})
	}
}

func TestSendMessageMissingRideIsNotFatal(t *testing.T) {
	f := newFixture(t, defaultDestinations)
	item := sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver)
	item.Params[saga.ParamRideID] = "other"

	_, err := f.send.Execute(context.Background(), item)
	assert.ErrorIs(t, err, ride.ErrRideNotFound)
	assert.False(t, IsFatal(err))
	assert.False(t, rabbitmq.IsPermanent(err))
	assert.Empty(t, f.pub.sent)
}

func TestSendMessageTraceIDMustBeString(t *testing.T) {
	f := newFixture(t, defaultDestinations)
	item := sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver)
	item.Params[saga.ParamTraceID] = 42

	_, err := f.send.Execute(context.Background(), item)
	require.NoError(t, err)
	require.Len(t, f.pub.sent, 1)
	msg, err := contracts.Decode(f.pub.sent[0].body)
	require.NoError(t, err)
	assert.Empty(t, msg.TraceID)
}

func TestSendMessagePublishFailureDoesNotFailStep(t *testing.T) {
	f := newFixture(t, defaultDestinations)
	f.pub.err = errors.New("broker down")

	err := f.uow.WithinTx(context.Background(), func(ctx context.Context) error {
		_, err := f.send.Execute(ctx, sendItem(contracts.TypeAssignDriverCommand, saga.DestinationAssignDriver))
		return err
	})
	assert.NoError(t, err)
	assert.Len(t, f.pub.sent, 1)
}

func TestPayloadBuildersAreImmutable(t *testing.T) {
	entries := map[string]PayloadBuilder{contracts.TypeAssignDriverCommand: contracts.NewAssignDriverCommand}
	builders := NewPayloadBuilders(entries)
	entries["Late"] = contracts.NewHandlePaymentCommand

	_, ok := builders.Lookup("Late")
	assert.False(t, ok)

	extended := builders.With("Refund", contracts.NewHandlePaymentCommand)
	_, ok = extended.Lookup("Refund")
	assert.True(t, ok)
	_, ok = builders.Lookup("Refund")
	assert.False(t, ok)

	assert.Equal(t, []string{"AssignDriverCommand", "HandlePaymentCommand"}, DefaultPayloadBuilders().Types())
}

func TestUpdateRide(t *testing.T) {
	f := newFixture(t, defaultDestinations)
	ctx := context.Background()
	key, _ := saga.NewCorrelationKey("ride123")

	_, err := f.update.Execute(ctx, saga.WorkItem{
		Key:    key,
		Name:   saga.WorkItemUpdateRide,
		Params: map[string]any{saga.ParamStatus: "Started"},
	})
	require.NoError(t, err)

	r, err := f.rides.FindByRideID(ctx, "ride123")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusStarted, r.Status)

	_, err = f.update.Execute(ctx, saga.WorkItem{
		Key:    key,
		Name:   saga.WorkItemUpdateRide,
		Params: map[string]any{saga.ParamStatus: "teleported"},
	})
	assert.ErrorIs(t, err, ride.ErrInvalidStatus)
	assert.True(t, IsFatal(err))

	missing, _ := saga.NewCorrelationKey("nope")
	_, err = f.update.Execute(ctx, saga.WorkItem{
		Key:    missing,
		Name:   saga.WorkItemUpdateRide,
		Params: map[string]any{saga.ParamStatus: "ended"},
	})
	assert.ErrorIs(t, err, ride.ErrRideNotFound)
}
