package vectordb

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns the connector for an organization's stored connection. The
// connection type is the only place provider identity is inspected.
func New(connectionType string, settings Settings, log *zap.Logger) (Connector, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch connectionType {
	case TypePinecone:
		return newPineconeConnector(settings, log)
	case TypeChroma:
		return newChromaConnector(settings, log)
	case TypeQdrant:
		return newQdrantConnector(settings, log)
	case TypeWeaviate:
		return newWeaviateConnector(settings, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, connectionType)
	}
}

// NewFromRaw decodes stored settings and returns the connector.
func NewFromRaw(connectionType string, rawSettings []byte, log *zap.Logger) (Connector, error) {
	settings, err := ParseSettings(rawSettings)
	if err != nil {
		return nil, err
	}
	return New(connectionType, settings, log)
}
