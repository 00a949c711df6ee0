package state

import "meritledger/core/types"

// Key layout. Every row is a JSON document; list projections keep a separate
// index row holding ordered ids so reads never scan the whole keyspace.
const (
	prefixWallet  = "wallet:"
	prefixQuota   = "quota:"
	prefixTx      = "tx:"
	prefixTxIdx   = "txidx:"
	prefixScore   = "score:"
	prefixTarget  = "target:"
	prefixPool    = "pool:"
	prefixClosing = "closing:"
)

func walletKey(key types.WalletKey) []byte {
	return []byte(prefixWallet + key.Community + "/" + key.Actor)
}

func quotaKey(community, actor string) []byte {
	return []byte(prefixQuota + community + "/" + actor)
}

func txKey(id string) []byte {
	return []byte(prefixTx + id)
}

func txIndexKey(kind, id string) []byte {
	return []byte(prefixTxIdx + kind + ":" + id)
}

func scoreKey(targetID string) []byte {
	return []byte(prefixScore + targetID)
}

func targetKey(id string) []byte {
	return []byte(prefixTarget + id)
}

func poolKey(publicationID string) []byte {
	return []byte(prefixPool + publicationID)
}

func closingKey(publicationID string) []byte {
	return []byte(prefixClosing + publicationID)
}
