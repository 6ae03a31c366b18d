// Package engine ties the key schedule and the seven layers into packets.
//
// A packet is a plaintext system header followed by the output of layer 7:
//
//	packet = header || L7(L6(L5(L4(L3(L2(L1(plaintext)))))))
//
// Each call derives its layer keys from the master key and the nonce in the
// header, builds the layers from the packet's profile, and discards both when
// it returns. The header travels as associated data of layer 7, so it is
// authenticated along with the payload.
//
// # Usage
//
//	eng, err := engine.New(engine.Balanced.Name,
//		engine.WithLogger(logger),
//		engine.WithHook(instrument.NewRecorder()),
//	)
//
//	key, _ := engine.GenerateMasterKey()
//	packet, err := eng.Encrypt(ctx, plaintext, key, nil)
//	plaintext, err = eng.Decrypt(ctx, packet, key)
//
// Decrypt accepts packets of any built-in profile. Token expiry of layer 2 is
// only enforced with WithTokenTTL(true).
package engine
