package message

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testPacket(t *testing.T) *psbt.Packet {
	t.Helper()

	var hash chainhash.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&hash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(50_000, []byte{0x00, 0x14}))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	return packet
}

func TestRequestRoundTrip(t *testing.T) {
	packet := testPacket(t)

	payload, err := EncodeRequest(&SignRequest{Tx: packet})
	require.NoError(t, err)

	decoded, err := DecodeRequest(payload)
	require.NoError(t, err)
	require.Equal(t, packet.UnsignedTx.TxHash(), decoded.Tx.UnsignedTx.TxHash())
}

func TestResponseRoundTrip(t *testing.T) {
	packet := testPacket(t)

	payload, err := EncodeResponse(&SignResponse{Tx: packet})
	require.NoError(t, err)

	decoded, err := DecodeResponse(payload)
	require.NoError(t, err)
	require.NotNil(t, decoded.Tx)
	require.Equal(t, packet.UnsignedTx.TxHash(), decoded.Tx.UnsignedTx.TxHash())
}

func TestRefusalEncodesNullTx(t *testing.T) {
	payload, err := EncodeResponse(&SignResponse{})
	require.NoError(t, err)
	require.JSONEq(t, `{"tx":null}`, string(payload))

	decoded, err := DecodeResponse(payload)
	require.NoError(t, err)
	require.Nil(t, decoded.Tx)

	// A nil response value encodes the same way.
	payload, err = EncodeResponse(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"tx":null}`, string(payload))
}

func TestDecodeRequestMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		stage   string
	}{
		{"not json", []byte("not json at all"), "envelope"},
		{"wrong method", []byte(`{"method":"steal","tx":""}`), "method"},
		{"bad base64", []byte(`{"method":"sign","tx":"@@@@"}`), "base64"},
		{"bad psbt", []byte(`{"method":"sign","tx":"` + base64.StdEncoding.EncodeToString([]byte("junk")) + `"}`), "psbt"},
		{"empty", []byte(`{}`), "method"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest(tc.payload)
			require.Error(t, err)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			require.Equal(t, tc.stage, decodeErr.Stage)
		})
	}
}

func TestEncodeRequestRejectsEmpty(t *testing.T) {
	_, err := EncodeRequest(nil)
	require.Error(t, err)

	_, err = EncodeRequest(&SignRequest{})
	require.Error(t, err)
}
