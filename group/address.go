package group

import (
	"encoding/binary"
	"errors"

	"github.com/opd-ai/toxcore/transport"
)

var errBadAddressBytes = errors.New("group: malformed address bytes")

// packIPPort serializes a transport.NetworkAddress as (1-byte type, data,
// port already embedded by ToBytes for IP types). Non-IP address types
// (onion/i2p/nym/loki) are packed with an explicit length prefix since
// their data is variable length.
func packIPPort(addr transport.NetworkAddress) []byte {
	switch addr.Type {
	case transport.AddressTypeIPv4, transport.AddressTypeIPv6:
		body, err := addr.ToBytes()
		if err != nil {
			return []byte{byte(transport.AddressTypeUnknown)}
		}
		out := make([]byte, 1+len(body))
		out[0] = byte(addr.Type)
		copy(out[1:], body)
		return out
	default:
		out := make([]byte, 1+2+2+len(addr.Data))
		out[0] = byte(addr.Type)
		binary.BigEndian.PutUint16(out[1:3], addr.Port)
		binary.BigEndian.PutUint16(out[3:5], uint16(len(addr.Data)))
		copy(out[5:], addr.Data)
		return out
	}
}

// unpackIPPort is the inverse of packIPPort.
func unpackIPPort(data []byte) (transport.NetworkAddress, int, error) {
	if len(data) < 1 {
		return transport.NetworkAddress{}, 0, errBadAddressBytes
	}
	typ := transport.AddressType(data[0])
	switch typ {
	case transport.AddressTypeIPv4:
		if len(data) < 1+6 {
			return transport.NetworkAddress{}, 0, errBadAddressBytes
		}
		ip := make([]byte, 4)
		copy(ip, data[1:5])
		port := binary.BigEndian.Uint16(data[5:7])
		return transport.NetworkAddress{Type: typ, Data: ip, Port: port, Network: "udp"}, 1 + 6, nil
	case transport.AddressTypeIPv6:
		if len(data) < 1+18 {
			return transport.NetworkAddress{}, 0, errBadAddressBytes
		}
		ip := make([]byte, 16)
		copy(ip, data[1:17])
		port := binary.BigEndian.Uint16(data[17:19])
		return transport.NetworkAddress{Type: typ, Data: ip, Port: port, Network: "udp"}, 1 + 18, nil
	default:
		if len(data) < 5 {
			return transport.NetworkAddress{}, 0, errBadAddressBytes
		}
		port := binary.BigEndian.Uint16(data[1:3])
		dataLen := int(binary.BigEndian.Uint16(data[3:5]))
		if len(data) < 5+dataLen {
			return transport.NetworkAddress{}, 0, errBadAddressBytes
		}
		var addrData []byte
		if dataLen > 0 {
			addrData = make([]byte, dataLen)
			copy(addrData, data[5:5+dataLen])
		}
		return transport.NetworkAddress{Type: typ, Data: addrData, Port: port}, 5 + dataLen, nil
	}
}

// RelayNode names a TCP relay endpoint and the encryption key of the node
// operating it, as exchanged in handshakes and sync responses (spec.md
// §4.2, §4.5: "one packed TCP relay node", "(TCP-relay node, encryption
// key) triples").
type RelayNode struct {
	PublicKey [32]byte
	Address   transport.NetworkAddress
}

// pack serializes a RelayNode as (32-byte public key, packed address).
func (r RelayNode) pack() []byte {
	addrBytes := packIPPort(r.Address)
	out := make([]byte, 32+len(addrBytes))
	copy(out[:32], r.PublicKey[:])
	copy(out[32:], addrBytes)
	return out
}

func unpackRelayNode(data []byte) (RelayNode, int, error) {
	if len(data) < 32 {
		return RelayNode{}, 0, errBadAddressBytes
	}
	var r RelayNode
	copy(r.PublicKey[:], data[:32])
	addr, n, err := unpackIPPort(data[32:])
	if err != nil {
		return RelayNode{}, 0, err
	}
	r.Address = addr
	return r, 32 + n, nil
}
