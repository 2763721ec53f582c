package cartstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qmd/internal/cartstore"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(kind cartstore.Kind, message string) {
	m.Called(kind, message)
}

func TestNotifier_OneMessagePerOutcome(t *testing.T) {
	api := newFakeAPI()
	api.product("a", "Producto A", 1000, 10)
	api.cart("c1", "a", 2)

	n := &mockNotifier{}
	n.On("Notify", cartstore.KindSuccess, "Producto agregado al carro").Once()
	n.On("Notify", cartstore.KindInfo, "Producto eliminado del carro").Once()
	n.On("Notify", cartstore.KindError, "Error al tramitar el carro").Once()

	st := cartstore.New(api, cartstore.WithNotifier(n))
	ctx := context.Background()
	require.NoError(t, st.Load(ctx, "c1"))
	require.NoError(t, st.AddProduct(ctx, "a", 1))
	require.NoError(t, st.RemoveLineItem(ctx, "101"))

	api.submitErr = errRemote
	require.Error(t, st.Submit(ctx))

	n.AssertExpectations(t)
}

func TestNotifier_LocalRejectionsAreSilent(t *testing.T) {
	api := newFakeAPI()
	api.product("a", "Producto A", 1000, 10)
	api.cart("c1", "a", 1)

	n := &mockNotifier{}
	st := cartstore.New(api, cartstore.WithNotifier(n))
	ctx := context.Background()
	require.NoError(t, st.Load(ctx, "c1"))

	require.ErrorIs(t, st.SetQuantity(ctx, "101", 0), cartstore.ErrInvalidQuantity)
	require.ErrorIs(t, st.SetQuantity(ctx, "nope", 2), cartstore.ErrLineNotFound)

	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}
